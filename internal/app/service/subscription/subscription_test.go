package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/store/memory"
	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/types"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewService(st, &config.Config{}, zap.NewNop().Sugar()), st
}

func TestPlanCredits(t *testing.T) {
	svc, _ := newTestService(t)
	tests := []struct {
		plan types.PlanID
		want int
	}{
		{types.PlanPro, 100},
		{types.PlanAdvanced, 350},
		{types.PlanUltimate, 800},
		{types.PlanFree, 10},
		{"enterprise", 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, svc.PlanCredits(tt.plan), tt.plan)
	}
	assert.Equal(t, 20, svc.DailyMessageCap("enterprise"))
	assert.Equal(t, 250, svc.DailyMessageCap(types.PlanAdvanced))
}

func TestEnsureSubscription_CreatesFreeRowOnce(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)

	sub, err := svc.EnsureSubscription(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, types.PlanFree, sub.Plan)
	require.Equal(t, 10, sub.CreditsRemaining)
	require.NotNil(t, sub.CurrentPeriodEnd)

	again, err := svc.EnsureSubscription(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, sub.ID, again.ID)
	require.Equal(t, 1, st.Counts()["subscriptions"])
}

func TestUpsertFromCheckout_NewRow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sub, err := svc.UpsertFromCheckout(ctx, &CheckoutSubscription{
		UserID:               "u1",
		Plan:                 types.PlanAdvanced,
		BillingCycle:         types.BillingCycleMonthly,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		StripePriceID:        "price_adv",
		PeriodStart:          start,
		PeriodEnd:            start.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	require.Equal(t, 350, sub.CreditsTotal)
	require.Equal(t, 350, sub.CreditsRemaining)
	require.Equal(t, "sub_1", *sub.StripeSubscriptionID)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
}

func TestUpsertFromCheckout_DowngradeKeepsUsageAndGoesNegative(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	require.NoError(t, st.CreateSubscription(ctx, &models.Subscription{
		UserID: "u1", Plan: types.PlanAdvanced, BillingCycle: types.BillingCycleMonthly,
		Status: types.SubscriptionStatusActive, CreditsTotal: 350, CreditsUsed: 300,
	}))

	sub, err := svc.UpsertFromCheckout(ctx, &CheckoutSubscription{UserID: "u1", Plan: types.PlanPro, BillingCycle: types.BillingCycleMonthly})
	require.NoError(t, err)
	require.Equal(t, types.PlanPro, sub.Plan)
	require.Equal(t, 100, sub.CreditsTotal)
	require.Equal(t, 300, sub.CreditsUsed)
	require.Equal(t, -200, sub.CreditsRemaining)
}

func TestCancelAndPastDue_KeepCredits(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	_, err := svc.EnsureSubscription(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.MarkPastDue(ctx, "u1"))
	sub, _ := st.GetUserSubscription(ctx, "u1")
	require.Equal(t, types.SubscriptionStatusPastDue, sub.Status)
	require.Equal(t, 10, sub.CreditsRemaining)

	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Cancel(ctx, "u1", at))
	sub, _ = st.GetUserSubscription(ctx, "u1")
	require.Equal(t, types.SubscriptionStatusCancelled, sub.Status)
	require.True(t, sub.CancelledAt.Equal(at))
	require.Equal(t, 10, sub.CreditsRemaining)
}

func TestAdvancePeriod(t *testing.T) {
	now := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	monthly := &models.Subscription{BillingCycle: types.BillingCycleMonthly, CurrentPeriodEnd: lo.ToPtr(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))}
	p := AdvancePeriod(monthly, now)
	require.Equal(t, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), p.Start)
	require.Equal(t, time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC), p.End)

	yearly := &models.Subscription{BillingCycle: types.BillingCycleYearly, CurrentPeriodEnd: lo.ToPtr(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))}
	p = AdvancePeriod(yearly, now)
	require.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), p.End)
}

func TestGetCreditsInfo(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	_, err := svc.EnsureSubscription(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, st.CreateUsageEvent(ctx, &models.UsageEvent{UserID: "u1", ChatID: "c1"}))

	info, err := svc.GetCreditsInfo(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, types.PlanFree, info.Plan)
	require.EqualValues(t, 1, info.MessagesToday)
	require.Equal(t, 20, info.MessagesPerDay)
}
