package credit_reset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/internal/app/service/subscription"
	"github.com/aiwa-app/aiwa/internal/models"
	platformredis "github.com/aiwa-app/aiwa/internal/platform/redis"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/internal/store/memory"
	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/types"
)

// flakyStore fails the reset of one user.
type flakyStore struct {
	*memory.Store
	failUser string
}

func (f *flakyStore) ResetMonthlyCredits(ctx context.Context, userID string, reset *store.CreditReset) error {
	if userID == f.failUser {
		return errors.New("connection reset")
	}
	return f.Store.ResetMonthlyCredits(ctx, userID, reset)
}

func newService(st store.Store, locker platformredis.Locker) *Service {
	cfg := &config.Config{}
	log := zap.NewNop().Sugar()
	return NewService(cfg, st, subscription.NewService(st, cfg, log), locker, log)
}

func dueSub(userID string, end time.Time, cycle types.BillingCycle) *models.Subscription {
	return &models.Subscription{
		UserID:           userID,
		Plan:             types.PlanPro,
		BillingCycle:     cycle,
		Status:           types.SubscriptionStatusActive,
		CreditsTotal:     100,
		CreditsUsed:      70,
		CurrentPeriodEnd: lo.ToPtr(end),
	}
}

func TestRun_ResetsLapsedSubscriptions(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	lapsed := time.Now().Add(-2 * time.Hour)
	require.NoError(t, st.CreateSubscription(ctx, dueSub("u1", lapsed, types.BillingCycleMonthly)))
	require.NoError(t, st.CreateSubscription(ctx, dueSub("u2", time.Now().Add(48*time.Hour), types.BillingCycleMonthly)))

	res, err := newService(st, platformredis.NewLocalLocker()).Run(ctx, TriggerHTTP)
	require.NoError(t, err)
	require.Equal(t, 1, res.Due)
	require.Equal(t, 1, res.Processed)
	require.Zero(t, res.Failed)

	sub, _ := st.GetUserSubscription(ctx, "u1")
	require.Equal(t, 100, sub.CreditsRemaining)
	require.Zero(t, sub.CreditsUsed)
	require.True(t, sub.CurrentPeriodEnd.Equal(lapsed.AddDate(0, 1, 0)))

	untouched, _ := st.GetUserSubscription(ctx, "u2")
	require.Equal(t, 30, untouched.CreditsRemaining)

	res, err = newService(st, platformredis.NewLocalLocker()).Run(ctx, TriggerHTTP)
	require.NoError(t, err)
	require.Zero(t, res.Due)
}

func TestRun_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Store: memory.New(), failUser: "bad"}
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "bad", "c"} {
		require.NoError(t, st.CreateSubscription(ctx, dueSub(id, base.Add(-time.Duration(3-i)*time.Minute), types.BillingCycleYearly)))
	}

	res, err := newService(st, platformredis.NewLocalLocker()).Run(ctx, TriggerSchedule)
	require.NoError(t, err)
	require.Equal(t, 3, res.Due)
	require.Equal(t, 2, res.Processed)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, "bad", res.Failures[0].UserID)

	c, _ := st.GetUserSubscription(ctx, "c")
	require.Equal(t, 100, c.CreditsRemaining)
	require.True(t, c.CurrentPeriodEnd.After(time.Now().AddDate(0, 11, 0)))
	bad, _ := st.GetUserSubscription(ctx, "bad")
	require.Equal(t, 30, bad.CreditsRemaining)
}

func TestRun_LockHeld(t *testing.T) {
	locker := platformredis.NewLocalLocker()
	release, ok, err := locker.TryLock(context.Background(), LockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	svc := newService(memory.New(), locker)
	_, err = svc.Run(context.Background(), TriggerHTTP)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, release(context.Background()))
	_, err = svc.Run(context.Background(), TriggerHTTP)
	require.NoError(t, err)
}

func TestScheduler_DisabledWithoutSchedule(t *testing.T) {
	s := NewScheduler(&config.Config{}, nil, zap.NewNop().Sugar())
	require.False(t, s.Enabled())
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	s := NewScheduler(&config.Config{Cron: config.CronConfig{Schedule: "every day"}}, nil, zap.NewNop().Sugar())
	require.Error(t, s.Start())
}
