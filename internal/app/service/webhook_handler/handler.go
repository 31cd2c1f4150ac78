package webhook_handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/internal/app/service/subscription"
	"github.com/aiwa-app/aiwa/internal/app/service/webhook_log"
	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/platform/stripeclient"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/logctx"
	"github.com/aiwa-app/aiwa/pkg/metrics"
	"github.com/aiwa-app/aiwa/pkg/types"
)

// WebhookPath is where the provider delivers events.
const WebhookPath = "/api/billing/webhook"

var ErrUnresolvedUser = errors.New("webhook: cannot resolve user")

type Handler struct {
	cfg     *config.Config
	logs    *webhook_log.Service
	subs    *subscription.Service
	store   store.Store
	fetcher stripeclient.SubscriptionFetcher
	log     *zap.SugaredLogger

	// redelivery target of Resend
	endpoint   string
	httpClient *http.Client
}

func NewHandler(
	cfg *config.Config,
	logs *webhook_log.Service,
	subs *subscription.Service,
	st store.Store,
	fetcher stripeclient.SubscriptionFetcher,
	log *zap.SugaredLogger,
) *Handler {
	return &Handler{
		cfg:        cfg,
		logs:       logs,
		subs:       subs,
		store:      st,
		fetcher:    fetcher,
		log:        log,
		endpoint:   cfg.Server.PublicBaseURL + WebhookPath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Handle verifies and processes one delivery. A signature failure returns an
// error wrapping stripeclient.ErrInvalidSignature before anything is stored.
func (h *Handler) Handle(ctx context.Context, payload []byte, signature string) (resErr error) {
	lg := logctx.FromCtx(ctx, h.log)

	ev, err := stripeclient.VerifyEvent(payload, signature, h.cfg.Stripe.WebhookSecret)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		lg.Warnw("rejected webhook", "err", err)
		return err
	}

	parser := NewEventParser(ev)
	eventID, eventType := parser.GetEventID(), parser.GetEventType()
	if err := h.logs.Received(ctx, parser.GetLog(payload)); err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, string(types.WebhookLogStatusFailed)).Inc()
		return err
	}

	defer func() {
		status := types.WebhookLogStatusSuccess
		if resErr != nil {
			status = types.WebhookLogStatusFailed
			h.logs.Failed(ctx, eventID, resErr)
			lg.Errorw("webhook handling failed", "event_id", eventID, "type", eventType, "err", resErr)
		} else {
			h.logs.Succeeded(ctx, eventID)
		}
		metrics.WebhookEvents.WithLabelValues(eventType, string(status)).Inc()
	}()

	event, err := parser.GetEvent()
	if err != nil {
		return err
	}
	lg.Infow("handling webhook", "event_id", eventID, "type", eventType)
	return h.dispatch(ctx, event)
}

func (h *Handler) dispatch(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case *CheckoutSubscriptionCompleted:
		return h.onCheckoutSubscription(ctx, e)
	case *CheckoutPaymentCompleted:
		return h.onCheckoutPayment(ctx, e)
	case *SubscriptionUpdated:
		return h.onSubscriptionUpdated(ctx, e)
	case *SubscriptionDeleted:
		return h.onSubscriptionDeleted(ctx, e)
	case *InvoicePaymentSucceeded:
		return h.onInvoicePaymentSucceeded(ctx, e)
	case *InvoicePaymentFailed:
		return h.onInvoicePaymentFailed(ctx, e)
	case *Unhandled:
		logctx.FromCtx(ctx, h.log).Infow("ignoring webhook", "event_id", e.EventID(), "type", e.EventType())
		return nil
	default:
		return fmt.Errorf("no handler for event %T", event)
	}
}

// resolveUser finds the owner of a provider subscription: object metadata,
// then the fetched subscription's metadata, then the local row. The fetched
// subscription is returned when a lookup happened.
func (h *Handler) resolveUser(ctx context.Context, objectUserID, stripeSubscriptionID string) (string, *stripeclient.ProviderSubscription, error) {
	if objectUserID != "" {
		return objectUserID, nil, nil
	}
	if stripeSubscriptionID == "" {
		return "", nil, ErrUnresolvedUser
	}

	lg := logctx.FromCtx(ctx, h.log)
	fetched, err := h.fetcher.GetSubscription(ctx, stripeSubscriptionID)
	if err != nil {
		lg.Warnw("subscription lookup failed, falling back to local row", "subscription_id", stripeSubscriptionID, "err", err)
	}
	if fetched != nil && fetched.Metadata[metadataUserID] != "" {
		return fetched.Metadata[metadataUserID], fetched, nil
	}

	sub, err := h.store.GetSubscriptionByStripeID(ctx, stripeSubscriptionID)
	switch {
	case err == nil:
		return sub.UserID, fetched, nil
	case errors.Is(err, store.ErrNotFound):
		return "", fetched, fmt.Errorf("%w for subscription %s", ErrUnresolvedUser, stripeSubscriptionID)
	default:
		return "", fetched, fmt.Errorf("failed to look up subscription %s: %w", stripeSubscriptionID, err)
	}
}

func billingCycleOf(metadata map[string]string, interval string) types.BillingCycle {
	if v := metadata["billingCycle"]; v != "" {
		return types.ParseBillingCycle(v)
	}
	if interval == "year" {
		return types.BillingCycleYearly
	}
	return types.BillingCycleMonthly
}

func (h *Handler) onCheckoutSubscription(ctx context.Context, e *CheckoutSubscriptionCompleted) error {
	session := e.Session
	subID := ""
	if session.Subscription != nil {
		subID = session.Subscription.ID
	}
	if subID == "" {
		return fmt.Errorf("checkout session %s has no subscription", session.ID)
	}
	fetched, err := h.fetcher.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}

	userID := session.Metadata[metadataUserID]
	if userID == "" {
		userID = fetched.Metadata[metadataUserID]
	}
	if userID == "" {
		return fmt.Errorf("%w for checkout session %s", ErrUnresolvedUser, session.ID)
	}
	plan := session.Metadata["plan"]
	if plan == "" {
		plan = fetched.Metadata["plan"]
	}
	cycleSource := session.Metadata
	if cycleSource["billingCycle"] == "" {
		cycleSource = fetched.Metadata
	}

	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	if customerID == "" {
		customerID = fetched.CustomerID
	}
	status := types.SubscriptionStatusActive
	if fetched.Status != "" {
		status = types.FromStripeStatus(fetched.Status)
	}

	sub, err := h.subs.UpsertFromCheckout(ctx, &subscription.CheckoutSubscription{
		UserID:               userID,
		Plan:                 types.PlanID(plan),
		BillingCycle:         billingCycleOf(cycleSource, fetched.Interval),
		Status:               status,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subID,
		StripePriceID:        fetched.PriceID,
		PeriodStart:          fetched.CurrentPeriodStart,
		PeriodEnd:            fetched.CurrentPeriodEnd,
		CancelAtPeriodEnd:    fetched.CancelAtPeriodEnd,
	})
	if err != nil {
		return err
	}
	logctx.FromCtx(ctx, h.log).Infow("checkout subscription applied",
		"user_id", userID, "plan", sub.Plan, "credits_total", sub.CreditsTotal, "credits_remaining", sub.CreditsRemaining)
	return nil
}

// purchaseAmount reads the USD amount from metadata, falling back to the session total.
func purchaseAmount(session *stripe.CheckoutSession) decimal.Decimal {
	if v := session.Metadata["amount"]; v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.New(session.AmountTotal, -2)
}

func (h *Handler) onCheckoutPayment(ctx context.Context, e *CheckoutPaymentCompleted) error {
	session := e.Session
	userID := session.Metadata[metadataUserID]
	if userID == "" {
		return fmt.Errorf("%w for checkout session %s", ErrUnresolvedUser, session.ID)
	}
	credits, err := strconv.Atoi(session.Metadata["credits"])
	if err != nil || credits <= 0 {
		return fmt.Errorf("checkout session %s has invalid credits metadata %q", session.ID, session.Metadata["credits"])
	}
	paymentID := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		paymentID = session.PaymentIntent.ID
	}
	amount := purchaseAmount(session)

	if _, err := h.subs.EnsureSubscription(ctx, userID); err != nil {
		return err
	}
	applied, err := h.store.ApplyCreditPurchase(ctx,
		&models.CreditPurchase{
			UserID:                userID,
			AmountUSD:             amount,
			Credits:               credits,
			StripePaymentIntentID: paymentID,
		},
		&models.PaymentTransaction{
			UserID:          userID,
			Kind:            types.PaymentKindCreditPurchase,
			Amount:          amount.Shift(2).IntPart(),
			Currency:        lo.Ternary(session.Currency != "", string(session.Currency), "usd"),
			Status:          types.PaymentStatusPaid,
			StripePaymentID: lo.ToPtr(paymentID),
			Description:     fmt.Sprintf("%d credits", credits),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to apply credit purchase: %w", err)
	}
	logctx.FromCtx(ctx, h.log).Infow("credit purchase", "user_id", userID, "payment_id", paymentID, "credits", credits, "applied", applied)
	return nil
}

func (h *Handler) onSubscriptionUpdated(ctx context.Context, e *SubscriptionUpdated) error {
	obj := e.Subscription
	userID, _, err := h.resolveUser(ctx, obj.Metadata[metadataUserID], obj.ID)
	if err != nil {
		return err
	}
	start, end := obj.Period()
	return h.subs.ApplyProviderState(ctx, userID, &subscription.ProviderState{
		Status:            types.FromStripeStatus(string(obj.Status)),
		PeriodStart:       start,
		PeriodEnd:         end,
		CancelAtPeriodEnd: obj.CancelAtPeriodEnd,
	})
}

func (h *Handler) onSubscriptionDeleted(ctx context.Context, e *SubscriptionDeleted) error {
	obj := e.Subscription
	userID, _, err := h.resolveUser(ctx, obj.Metadata[metadataUserID], obj.ID)
	if err != nil {
		return err
	}
	at := unixOrZero(obj.CanceledAt)
	if at.IsZero() {
		at = unixOrZero(obj.EndedAt)
	}
	return h.subs.Cancel(ctx, userID, at)
}

func (h *Handler) onInvoicePaymentSucceeded(ctx context.Context, e *InvoicePaymentSucceeded) error {
	inv := e.Invoice
	lg := logctx.FromCtx(ctx, h.log)
	subID := inv.SubscriptionID()
	if subID == "" {
		lg.Infow("invoice without subscription, skipping", "invoice_id", inv.ID)
		return nil
	}
	userID, fetched, err := h.resolveUser(ctx, inv.MetadataUserID(), subID)
	if err != nil {
		return err
	}

	tx := &models.PaymentTransaction{
		UserID:               userID,
		Kind:                 types.PaymentKindSubscriptionInvoice,
		Amount:               inv.AmountPaid,
		Currency:             string(inv.Currency),
		Status:               types.PaymentStatusPaid,
		StripeInvoiceID:      lo.ToPtr(inv.ID),
		StripeSubscriptionID: lo.ToPtr(subID),
		Description:          "subscription invoice",
	}
	if pi := inv.PaymentIntentID(); pi != "" {
		tx.StripePaymentID = lo.ToPtr(pi)
	}
	current, err := h.store.GetUserSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load subscription of %s: %w", userID, err)
	}
	reset := &store.CreditReset{Allowance: h.subs.PlanCredits(current.Plan)}
	applied, err := h.store.ApplyInvoicePayment(ctx, userID, reset, tx)
	if err != nil {
		return fmt.Errorf("failed to apply invoice %s: %w", inv.ID, err)
	}
	if !applied {
		lg.Infow("invoice already recorded", "invoice_id", inv.ID, "user_id", userID)
		return nil
	}
	if fetched != nil && !fetched.CurrentPeriodEnd.IsZero() {
		if err := h.subs.ApplyProviderState(ctx, userID, &subscription.ProviderState{
			Status:            types.FromStripeStatus(fetched.Status),
			PeriodStart:       fetched.CurrentPeriodStart,
			PeriodEnd:         fetched.CurrentPeriodEnd,
			CancelAtPeriodEnd: fetched.CancelAtPeriodEnd,
		}); err != nil {
			return err
		}
	}
	lg.Infow("invoice paid, credits reset", "invoice_id", inv.ID, "user_id", userID)
	return nil
}

func (h *Handler) onInvoicePaymentFailed(ctx context.Context, e *InvoicePaymentFailed) error {
	inv := e.Invoice
	subID := inv.SubscriptionID()
	if subID == "" {
		logctx.FromCtx(ctx, h.log).Infow("invoice without subscription, skipping", "invoice_id", inv.ID)
		return nil
	}
	userID, _, err := h.resolveUser(ctx, inv.MetadataUserID(), subID)
	if err != nil {
		return err
	}
	return h.subs.MarkPastDue(ctx, userID)
}
