package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/logctx"
	"github.com/aiwa-app/aiwa/pkg/types"
)

type Service struct {
	store store.Store
	cfg   *config.Config
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewService(st store.Store, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{store: st, cfg: cfg, log: log, now: time.Now}
}

// PlanCredits returns the credits granted per period. Unknown plans get the default allowance.
func (s *Service) PlanCredits(plan types.PlanID) int {
	if p := s.cfg.GetPlan(plan); p != nil {
		return p.Credits
	}
	return types.DefaultUnknownPlanCredits
}

// DailyMessageCap returns the trailing-24h message cap of a plan. Unknown
// plans are capped like the free plan.
func (s *Service) DailyMessageCap(plan types.PlanID) int {
	if p := s.cfg.GetPlan(plan); p != nil {
		return p.MessagesPerDay
	}
	if p := s.cfg.GetPlan(types.PlanFree); p != nil {
		return p.MessagesPerDay
	}
	return 0
}

// EnsureSubscription returns the user's subscription, creating a free one on first use.
func (s *Service) EnsureSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.store.GetUserSubscription(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	now := s.now()
	period := NextPeriod(now, types.BillingCycleMonthly)
	sub = &models.Subscription{
		UserID:             userID,
		Plan:               types.PlanFree,
		BillingCycle:       types.BillingCycleMonthly,
		Status:             types.SubscriptionStatusActive,
		CreditsTotal:       s.PlanCredits(types.PlanFree),
		CurrentPeriodStart: lo.ToPtr(period.Start),
		CurrentPeriodEnd:   lo.ToPtr(period.End),
	}
	err = s.store.CreateSubscription(ctx, sub)
	switch {
	case err == nil:
		logctx.FromCtx(ctx, s.log).Infow("created free subscription", "user_id", userID, "credits", sub.CreditsTotal)
		return sub, nil
	case errors.Is(err, store.ErrAlreadyExists):
		// lost a race with a concurrent first request
		return s.store.GetUserSubscription(ctx, userID)
	default:
		return nil, err
	}
}

// CheckoutSubscription is a completed subscription-mode checkout joined with
// the provider's subscription object.
type CheckoutSubscription struct {
	UserID               string
	Plan                 types.PlanID
	BillingCycle         types.BillingCycle
	Status               types.SubscriptionStatus
	StripeCustomerID     string
	StripeSubscriptionID string
	StripePriceID        string
	PeriodStart          time.Time
	PeriodEnd            time.Time
	CancelAtPeriodEnd    bool
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// UpsertFromCheckout applies a paid checkout. An existing row keeps its
// credits_used, so a downgrade can leave credits_remaining negative.
func (s *Service) UpsertFromCheckout(ctx context.Context, in *CheckoutSubscription) (*models.Subscription, error) {
	if in == nil || in.UserID == "" {
		return nil, fmt.Errorf("checkout without user id")
	}
	credits := s.PlanCredits(in.Plan)
	status := in.Status
	if status == "" {
		status = types.SubscriptionStatusActive
	}
	lg := logctx.FromCtx(ctx, s.log)

	_, err := s.store.GetUserSubscription(ctx, in.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		sub := &models.Subscription{
			UserID:               in.UserID,
			Plan:                 in.Plan,
			BillingCycle:         in.BillingCycle,
			Status:               status,
			CreditsTotal:         credits,
			StripeCustomerID:     optional(in.StripeCustomerID),
			StripeSubscriptionID: optional(in.StripeSubscriptionID),
			StripePriceID:        optional(in.StripePriceID),
			CurrentPeriodStart:   optionalTime(in.PeriodStart),
			CurrentPeriodEnd:     optionalTime(in.PeriodEnd),
			CancelAtPeriodEnd:    in.CancelAtPeriodEnd,
		}
		err := s.store.CreateSubscription(ctx, sub)
		if err == nil {
			lg.Infow("subscription created from checkout", "user_id", in.UserID, "plan", in.Plan, "credits", credits)
			return sub, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return nil, err
		}
		// created concurrently; apply as an update
	case err != nil:
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	upd := &store.SubscriptionUpdate{
		Plan:              lo.ToPtr(in.Plan),
		BillingCycle:      lo.ToPtr(in.BillingCycle),
		Status:            lo.ToPtr(status),
		CreditsTotal:      lo.ToPtr(credits),
		CancelAtPeriodEnd: lo.ToPtr(in.CancelAtPeriodEnd),
	}
	upd.StripeCustomerID = optional(in.StripeCustomerID)
	upd.StripeSubscriptionID = optional(in.StripeSubscriptionID)
	upd.StripePriceID = optional(in.StripePriceID)
	upd.CurrentPeriodStart = optionalTime(in.PeriodStart)
	upd.CurrentPeriodEnd = optionalTime(in.PeriodEnd)
	if err := s.store.UpdateSubscription(ctx, in.UserID, upd); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	lg.Infow("subscription updated from checkout", "user_id", in.UserID, "plan", in.Plan, "credits", credits)
	return s.store.GetUserSubscription(ctx, in.UserID)
}

// ProviderState is the lifecycle part of a provider subscription.
type ProviderState struct {
	Status            types.SubscriptionStatus
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

// ApplyProviderState updates status, period bounds and the cancel flag. Credits are not touched.
func (s *Service) ApplyProviderState(ctx context.Context, userID string, st *ProviderState) error {
	upd := &store.SubscriptionUpdate{
		CancelAtPeriodEnd:  lo.ToPtr(st.CancelAtPeriodEnd),
		CurrentPeriodStart: optionalTime(st.PeriodStart),
		CurrentPeriodEnd:   optionalTime(st.PeriodEnd),
	}
	if st.Status != "" {
		upd.Status = lo.ToPtr(st.Status)
	}
	if err := s.store.UpdateSubscription(ctx, userID, upd); err != nil {
		return fmt.Errorf("failed to apply provider state: %w", err)
	}
	return nil
}

// Cancel marks the subscription cancelled. Remaining credits are kept.
func (s *Service) Cancel(ctx context.Context, userID string, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	err := s.store.UpdateSubscription(ctx, userID, &store.SubscriptionUpdate{
		Status:      lo.ToPtr(types.SubscriptionStatusCancelled),
		CancelledAt: lo.ToPtr(at),
	})
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return nil
}

func (s *Service) MarkPastDue(ctx context.Context, userID string) error {
	err := s.store.UpdateSubscription(ctx, userID, &store.SubscriptionUpdate{
		Status: lo.ToPtr(types.SubscriptionStatusPastDue),
	})
	if err != nil {
		return fmt.Errorf("failed to mark subscription past due: %w", err)
	}
	return nil
}

// NextPeriod returns the billing period starting at start.
func NextPeriod(start time.Time, cycle types.BillingCycle) store.Period {
	if cycle == types.BillingCycleYearly {
		return store.Period{Start: start, End: start.AddDate(1, 0, 0)}
	}
	return store.Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// AdvancePeriod rolls a lapsed period forward until it contains now.
func AdvancePeriod(sub *models.Subscription, now time.Time) store.Period {
	start := now
	if sub.CurrentPeriodEnd != nil {
		start = *sub.CurrentPeriodEnd
	}
	p := NextPeriod(start, sub.BillingCycle)
	for !p.End.After(now) {
		p = NextPeriod(p.End, sub.BillingCycle)
	}
	return p
}

// ResetCredits restores the plan allowance and moves the period forward.
// Purchased top-ups expire with the period.
func (s *Service) ResetCredits(ctx context.Context, sub *models.Subscription) (store.Period, error) {
	p := AdvancePeriod(sub, s.now())
	if err := s.store.ResetMonthlyCredits(ctx, sub.UserID, &store.CreditReset{Allowance: s.PlanCredits(sub.Plan), Period: &p}); err != nil {
		return p, fmt.Errorf("failed to reset credits for %s: %w", sub.UserID, err)
	}
	return p, nil
}

// GetCreditsInfo summarizes the caller's balance, creating the free row if needed.
func (s *Service) GetCreditsInfo(ctx context.Context, userID string) (*types.UserCreditsInfo, error) {
	sub, err := s.EnsureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	since := s.now().Add(-24 * time.Hour)
	used, err := s.store.CountUserMessagesSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	return &types.UserCreditsInfo{
		Plan:             sub.Plan,
		Status:           sub.Status,
		CreditsTotal:     sub.CreditsTotal,
		CreditsUsed:      sub.CreditsUsed,
		CreditsRemaining: sub.CreditsRemaining,
		MessagesToday:    used,
		MessagesPerDay:   s.DailyMessageCap(sub.Plan),
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	}, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
