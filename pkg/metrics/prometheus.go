package metrics

/* adapted from https://github.com/zsais/go-gin-prometheus
edits:
- zap-compatible logger interface
- no push gateway, no basic auth variant
- business collectors registered alongside the HTTP ones
*/

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var reqCnt = &Metric{
	ID:          "reqCnt",
	Name:        "req_total",
	Description: "How many HTTP requests processed, partitioned by status code and HTTP method.",
	Type:        "counter_vec",
	Args:        []string{"code", "method", "url", "ref"}}

var reqDur = &Metric{
	ID:          "reqDur",
	Name:        "req_dur_ms",
	Description: "The HTTP request latencies in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var resSz = &Metric{
	ID:          "resSz",
	Name:        "resp_sz_bytes",
	Description: "The HTTP response sizes in bytes.",
	Type:        "summary_vec",
	Args:        []string{"code", "method", "url", "ref"},
}

var standardMetrics = []*Metric{
	reqCnt,
	reqDur,
	resSz,
}

var defaultMetricPath = "/metrics"

// Logger is satisfied by *zap.SugaredLogger.
type Logger interface {
	Errorf(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
}

// RequestCounterURLLabelMappingFn controls the cardinality of the "url" label,
// typically by returning gin's route template instead of the raw path.
type RequestCounterURLLabelMappingFn func(c *gin.Context) string

// Prometheus contains the metrics gathered by the instance and its path
type Prometheus struct {
	reqCnt        *prometheus.CounterVec
	reqDur        *prometheus.HistogramVec
	resSz         *prometheus.SummaryVec
	router        *gin.Engine
	listenAddress string
	registerer    prometheus.Registerer
	gatherer      prometheus.Gatherer

	MetricsList []*Metric
	MetricsPath string

	ReqCntURLLabelMappingFn RequestCounterURLLabelMappingFn

	logger Logger
}

type NewPrometheusOptions struct {
	Subsystem               string
	MetricsPath             string
	ReqCntURLLabelMappingFn func(c *gin.Context) string
	Logger                  Logger
	// Registry defaults to the global prometheus registry.
	Registry *prometheus.Registry
}

// NewPrometheus generates a new set of metrics with a certain subsystem name
func NewPrometheus(options NewPrometheusOptions) *Prometheus {
	p := &Prometheus{
		MetricsList: standardMetrics,
		logger:      options.Logger,
		registerer:  prometheus.DefaultRegisterer,
		gatherer:    prometheus.DefaultGatherer,
	}
	if options.Registry != nil {
		p.registerer = options.Registry
		p.gatherer = options.Registry
	}

	if options.MetricsPath != "" {
		p.MetricsPath = options.MetricsPath
	} else {
		p.MetricsPath = defaultMetricPath
	}

	if options.ReqCntURLLabelMappingFn != nil {
		p.ReqCntURLLabelMappingFn = options.ReqCntURLLabelMappingFn
	} else {
		p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
			return c.Request.URL.Path
		}
	}

	p.registerMetrics(options.Subsystem)

	return p
}

// SetListenAddress for exposing metrics on address. If not set, it will be exposed at the
// same address of the gin engine that is being used
func (p *Prometheus) SetListenAddress(address string) {
	p.listenAddress = address
	if p.listenAddress != "" {
		p.router = gin.New()
		p.router.Use(gin.Recovery())
	}
}

// SetMetricsPath set metrics paths
func (p *Prometheus) SetMetricsPath(e *gin.Engine) {
	h := gin.WrapH(promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{}))
	if p.listenAddress != "" {
		p.router.GET(p.MetricsPath, h)
		p.runServer()
	} else {
		e.GET(p.MetricsPath, h)
	}
}

func (p *Prometheus) runServer() {
	go func() {
		if err := p.router.Run(p.listenAddress); err != nil && p.logger != nil {
			p.logger.Errorf("metrics server stopped: %v", err)
		}
	}()
}

func (p *Prometheus) register(name string, c prometheus.Collector) prometheus.Collector {
	if err := p.registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		if p.logger != nil {
			p.logger.Errorf("%s could not be registered in Prometheus, err=%v", name, err)
		}
	}
	return c
}

func (p *Prometheus) registerMetrics(subsystem string) {
	for _, metricDef := range p.MetricsList {
		metric := p.register(metricDef.Name, NewMetric(metricDef, subsystem))
		switch metricDef {
		case reqCnt:
			p.reqCnt = metric.(*prometheus.CounterVec)
		case reqDur:
			p.reqDur = metric.(*prometheus.HistogramVec)
		case resSz:
			p.resSz = metric.(*prometheus.SummaryVec)
		}
		metricDef.MetricCollector = metric
	}
	for _, c := range businessCollectors {
		p.register("business", c)
	}
}

// Use adds the middleware to a gin engine.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	p.SetMetricsPath(e)
}

// HandlerFunc defines handler function for middleware
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		elapsed := MillisecondsSince(start)
		resSz := float64(c.Writer.Size())
		url := p.ReqCntURLLabelMappingFn(c)
		ref := c.Request.Header.Get(RefererKey)

		p.reqDur.WithLabelValues(status, c.Request.Method, url, ref).Observe(elapsed)
		p.reqCnt.WithLabelValues(status, c.Request.Method, url, ref).Inc()
		p.resSz.WithLabelValues(status, c.Request.Method, url, ref).Observe(resSz)
	}
}

// MillisecondsSince returns the elapsed time since start in milliseconds.
func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)
}
