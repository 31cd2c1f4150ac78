package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/aiwa-app/aiwa/internal/app/api/server"
	"github.com/aiwa-app/aiwa/internal/app/service/chat"
	"github.com/aiwa-app/aiwa/internal/app/service/credit_reset"
	"github.com/aiwa-app/aiwa/internal/app/service/statistics"
	"github.com/aiwa-app/aiwa/internal/app/service/subscription"
	"github.com/aiwa-app/aiwa/internal/app/service/webhook_handler"
	"github.com/aiwa-app/aiwa/internal/app/service/webhook_log"
	"github.com/aiwa-app/aiwa/internal/platform/db"
	"github.com/aiwa-app/aiwa/internal/platform/redis"
	"github.com/aiwa-app/aiwa/internal/platform/stripeclient"
	"github.com/aiwa-app/aiwa/internal/platform/v0"
	"github.com/aiwa-app/aiwa/internal/store/postgres"
	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 40 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	postgres.Module,
	redis.Module,
	stripeclient.Module,
	v0.Module,
	server.Module,
	subscription.Module,
	statistics.Module,
	webhook_log.Module,
	webhook_handler.Module,
	chat.Module,
	credit_reset.Module,
)
