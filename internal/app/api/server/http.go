package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aiwa-app/aiwa/docs"
	"github.com/aiwa-app/aiwa/internal/app/api/handlers"
	mw "github.com/aiwa-app/aiwa/internal/app/api/middleware"
	"github.com/aiwa-app/aiwa/internal/app/service/chat"
	"github.com/aiwa-app/aiwa/internal/app/service/credit_reset"
	"github.com/aiwa-app/aiwa/internal/app/service/statistics"
	"github.com/aiwa-app/aiwa/internal/app/service/subscription"
	"github.com/aiwa-app/aiwa/internal/app/service/webhook_handler"
	"github.com/aiwa-app/aiwa/internal/app/service/webhook_log"
	"github.com/aiwa-app/aiwa/internal/platform/db"
	cfgpkg "github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Log     *zap.SugaredLogger
	Cfg     *cfgpkg.Config
	DB      *gorm.DB
	Webhook *webhook_handler.Handler
	Logs    *webhook_log.Service
	Chat    *chat.Service
	Subs    *subscription.Service
	Reset   *credit_reset.Service
	Stats   *statistics.Service
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	log, cfg := d.Log, d.Cfg

	if cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return "unmatched"
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warnw("auth.jwt_secret is empty, session and admin routes reject every token")
	}

	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, handlers.ReadinessCheck{Name: "postgres", Check: db.Ping(d.DB)})
	handlers.RegisterWebhookRoutes(pub, d.Webhook)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	api.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterChatRoutes(api, cfg.Auth.JWTSecret, d.Chat, d.Subs)
	handlers.RegisterCronRoutes(api, cfg.Cron.Secret, d.Reset)

	admin := api.Group("/admin", mw.RequireAuth(cfg.Auth.JWTSecret), mw.RequireRole(mw.RoleAdmin))
	handlers.RegisterAdminWebhookRoutes(admin, d.Webhook, d.Logs)
	handlers.RegisterAdminPaymentRoutes(admin, d.Stats)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
