package credit_reset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/internal/app/service/subscription"
	platformredis "github.com/aiwa-app/aiwa/internal/platform/redis"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/logctx"
	"github.com/aiwa-app/aiwa/pkg/metrics"
)

// LockKey guards against overlapping runs across replicas.
const LockKey = "aiwa:cron:reset-credits"

// ErrAlreadyRunning is returned when another run holds the lock.
var ErrAlreadyRunning = errors.New("credit reset: already running")

const (
	TriggerHTTP     = "http"
	TriggerSchedule = "schedule"
)

type Failure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

type Result struct {
	Due       int       `json:"due"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

type Service struct {
	cfg    *config.Config
	store  store.Store
	subs   *subscription.Service
	locker platformredis.Locker
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewService(cfg *config.Config, st store.Store, subs *subscription.Service, locker platformredis.Locker, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, store: st, subs: subs, locker: locker, log: log, now: time.Now}
}

func (s *Service) lockTTL() time.Duration {
	if s.cfg.Cron.LockTTL > 0 {
		return s.cfg.Cron.LockTTL
	}
	return 10 * time.Minute
}

// Run resets every subscription whose period has ended. Rows are processed
// one at a time; a failing row is recorded and the loop moves on.
func (s *Service) Run(ctx context.Context, trigger string) (*Result, error) {
	lg := logctx.FromCtx(ctx, s.log)

	release, ok, err := s.locker.TryLock(ctx, LockKey, s.lockTTL())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			lg.Warnw("failed to release credit reset lock", "err", err)
		}
	}()

	start := s.now()
	due, err := s.store.ListSubscriptionsDueForReset(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	res := &Result{Due: len(due), StartedAt: start}
	for _, sub := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		period, err := s.subs.ResetCredits(ctx, sub)
		if err != nil {
			res.Failed++
			res.Failures = append(res.Failures, Failure{UserID: sub.UserID, Error: err.Error()})
			metrics.CreditResets.WithLabelValues(trigger, "failed").Inc()
			lg.Errorw("credit reset failed", "user_id", sub.UserID, "err", err)
			continue
		}
		res.Processed++
		metrics.CreditResets.WithLabelValues(trigger, "success").Inc()
		lg.Infow("credits reset", "user_id", sub.UserID, "plan", sub.Plan, "credits", sub.CreditsTotal, "period_end", period.End)
	}
	res.Duration = s.now().Sub(start).String()

	lg.Infow("credit reset finished", "trigger", trigger, "due", res.Due, "processed", res.Processed, "failed", res.Failed)
	return res, nil
}
