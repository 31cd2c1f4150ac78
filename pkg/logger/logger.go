package logger

import (
	"github.com/aiwa-app/aiwa/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(cfg *config.Config) (*zap.SugaredLogger, error) {
	zc := zap.NewProductionConfig()
	if cfg != nil && cfg.Env == config.EnvDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.TimeKey = "time"
	if cfg != nil && cfg.Log.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar().With("service", "aiwa-billing"), nil
}

var Module = fx.Options(
	fx.Provide(New),
)
