package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	// fast responses
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	// medium
	750, 1000, 1250, 1500, 1750, 2000,
	// slow, generation calls land here
	2500, 3000, 4000, 5000, 7500, 10000, 15000,
	20000, 30000, 45000, 60000, 90000, 120000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	case "gauge_vec":
		metric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets},
			m.Args,
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	}
	return metric
}

// Business metrics. Collectors are created eagerly so that services can
// record into them even when the HTTP exporter is disabled.
var (
	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Stripe webhook events processed, partitioned by event type and outcome.",
	}, []string{"type", "status"})

	ChatGateRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "chat",
		Name:      "gate_rejections_total",
		Help:      "Chat messages rejected before reaching the generation API, by reason.",
	}, []string{"reason"})

	CreditResets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "billing",
		Name:      "credit_resets_total",
		Help:      "Monthly credit resets, partitioned by trigger and outcome.",
	}, []string{"trigger", "status"})

	GenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "chat",
		Name:      "generation_dur_ms",
		Help:      "Latency of generation API calls in milliseconds.",
		Buckets:   HistogramBuckets,
	}, []string{"status"})
)

var businessCollectors = []prometheus.Collector{WebhookEvents, ChatGateRejections, CreditResets, GenerationDuration}

const (
	RefererKey = "X-Referer"
)
