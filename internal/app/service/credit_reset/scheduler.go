package credit_reset

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/pkg/config"
)

// Scheduler runs the reset in-process on cfg.Cron.Schedule. An empty
// schedule leaves the HTTP trigger as the only entry point.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	entryID  cron.EntryID
	log      *zap.SugaredLogger
}

func NewScheduler(cfg *config.Config, svc *Service, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		service:  svc,
		schedule: cfg.Cron.Schedule,
		log:      log,
	}
}

func (s *Scheduler) Enabled() bool { return s.schedule != "" }

func (s *Scheduler) Start() error {
	if !s.Enabled() {
		s.log.Infow("credit reset schedule disabled")
		return nil
	}
	entryID, err := s.cron.AddFunc(s.schedule, s.runOnce)
	if err != nil {
		return fmt.Errorf("invalid credit reset schedule %q: %w", s.schedule, err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.log.Infow("credit reset scheduler started", "schedule", s.schedule, "next", s.cron.Entry(entryID).Next)
	return nil
}

// Stop waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Infow("credit reset scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runOnce() {
	res, err := s.service.Run(context.Background(), TriggerSchedule)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.log.Infow("credit reset skipped, another run holds the lock")
	case err != nil:
		s.log.Errorw("scheduled credit reset failed", "err", err)
	default:
		s.log.Infow("scheduled credit reset done", "processed", res.Processed, "failed", res.Failed)
	}
}

func registerScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return s.Start() },
		OnStop:  s.Stop,
	})
}

var Module = fx.Options(
	fx.Provide(NewService, NewScheduler),
	fx.Invoke(registerScheduler),
)
