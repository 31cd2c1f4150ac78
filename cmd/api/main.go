package main

// @title           Aiwa Billing API
// @version         1.0
// @description     Stripe billing, credit metering and the credit-gated chat proxy.

// @host      localhost:8888
// @BasePath  /

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	a := fx.New(
		app.Module,
		fx.WithLogger(func(log *zap.SugaredLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Desugar()}
		}),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		// the app logger may not have been built
		zap.NewExample().Sugar().Errorf("failed to start app: %v", err)
		return 1
	}

	sig := <-a.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		zap.NewExample().Sugar().Errorf("failed to stop app: %v", err)
		return 1
	}
	return sig.ExitCode
}
