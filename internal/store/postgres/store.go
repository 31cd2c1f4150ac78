package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/pkg/tool"
	"github.com/aiwa-app/aiwa/pkg/types"
)

// Store implements store.Store on top of gorm.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store { return &Store{db: db} }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) GetUserSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *Store) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).Take(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = tool.GenerateUUIDV7()
	}
	sub.CreditsRemaining = sub.CreditsTotal - sub.CreditsUsed
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(sub)
	if res.Error != nil {
		return fmt.Errorf("failed to create subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func subscriptionUpdateColumns(upd *store.SubscriptionUpdate) map[string]any {
	cols := map[string]any{}
	if upd.Plan != nil {
		cols["plan"] = *upd.Plan
	}
	if upd.BillingCycle != nil {
		cols["billing_cycle"] = *upd.BillingCycle
	}
	if upd.Status != nil {
		cols["status"] = *upd.Status
	}
	switch {
	case upd.CreditsTotal != nil && upd.CreditsUsed != nil:
		cols["credits_total"] = *upd.CreditsTotal
		cols["credits_used"] = *upd.CreditsUsed
		cols["credits_remaining"] = *upd.CreditsTotal - *upd.CreditsUsed
	case upd.CreditsTotal != nil:
		cols["credits_total"] = *upd.CreditsTotal
		cols["credits_remaining"] = gorm.Expr("? - credits_used", *upd.CreditsTotal)
	case upd.CreditsUsed != nil:
		cols["credits_used"] = *upd.CreditsUsed
		cols["credits_remaining"] = gorm.Expr("credits_total - ?", *upd.CreditsUsed)
	}
	if upd.StripeCustomerID != nil {
		cols["stripe_customer_id"] = *upd.StripeCustomerID
	}
	if upd.StripeSubscriptionID != nil {
		cols["stripe_subscription_id"] = *upd.StripeSubscriptionID
	}
	if upd.StripePriceID != nil {
		cols["stripe_price_id"] = *upd.StripePriceID
	}
	if upd.CurrentPeriodStart != nil {
		cols["current_period_start"] = *upd.CurrentPeriodStart
	}
	if upd.CurrentPeriodEnd != nil {
		cols["current_period_end"] = *upd.CurrentPeriodEnd
	}
	if upd.CancelAtPeriodEnd != nil {
		cols["cancel_at_period_end"] = *upd.CancelAtPeriodEnd
	}
	if upd.CancelledAt != nil {
		cols["cancelled_at"] = *upd.CancelledAt
	}
	return cols
}

func (s *Store) UpdateSubscription(ctx context.Context, userID string, upd *store.SubscriptionUpdate) error {
	if upd == nil {
		return nil
	}
	cols := subscriptionUpdateColumns(upd)
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).Where("user_id = ?", userID).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to update subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func resetCreditsTx(tx *gorm.DB, userID string, reset *store.CreditReset) error {
	if reset == nil {
		reset = &store.CreditReset{}
	}
	cols := map[string]any{
		"credits_used":      0,
		"credits_remaining": gorm.Expr("credits_total"),
		"updated_at":        time.Now(),
	}
	if reset.Allowance > 0 {
		cols["credits_total"] = reset.Allowance
		cols["credits_remaining"] = reset.Allowance
	}
	if reset.Period != nil {
		cols["current_period_start"] = reset.Period.Start
		cols["current_period_end"] = reset.Period.End
	}
	res := tx.Model(&models.Subscription{}).Where("user_id = ?", userID).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to reset credits: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ResetMonthlyCredits(ctx context.Context, userID string, reset *store.CreditReset) error {
	return resetCreditsTx(s.db.WithContext(ctx), userID, reset)
}

func (s *Store) ListSubscriptionsDueForReset(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var rows []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("current_period_end IS NOT NULL AND current_period_end < ?", now).
		Where("status != ?", types.SubscriptionStatusCancelled).
		Order("current_period_end").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions due for reset: %w", err)
	}
	return rows, nil
}

// ConsumeCredits decrements in a single conditional UPDATE so concurrent
// requests cannot overspend.
func (s *Store) ConsumeCredits(ctx context.Context, userID string, cost int) error {
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND credits_remaining >= ? AND credits_remaining > 0", userID, cost).
		Updates(map[string]any{
			"credits_used":      gorm.Expr("credits_used + ?", cost),
			"credits_remaining": gorm.Expr("credits_remaining - ?", cost),
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to consume credits: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := s.GetUserSubscription(ctx, userID); err != nil {
		return err
	}
	return store.ErrInsufficientCredits
}

func (s *Store) RefundCredits(ctx context.Context, userID string, cost int) error {
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"credits_used":      gorm.Expr("GREATEST(credits_used - ?, 0)", cost),
			"credits_remaining": gorm.Expr("credits_total - GREATEST(credits_used - ?, 0)", cost),
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to refund credits: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateUsageEvent(ctx context.Context, ev *models.UsageEvent) error {
	if ev.ID == "" {
		ev.ID = tool.GenerateUUIDV7()
	}
	return s.db.WithContext(ctx).Create(ev).Error
}

func (s *Store) CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.UsageEvent{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}

func (s *Store) CountAnonymousMessagesSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.AnonymousChatLog{}).
		Where("ip_address = ? AND created_at >= ?", ip, since).
		Count(&n).Error
	return n, err
}

func (s *Store) CreateChatOwnership(ctx context.Context, o *models.ChatOwnership) error {
	if o.ID == "" {
		o.ID = tool.GenerateUUIDV7()
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "chat_id"}}, DoNothing: true}).
		Create(o).Error
}

func (s *Store) CreateAnonymousChatLog(ctx context.Context, l *models.AnonymousChatLog) error {
	if l.ID == "" {
		l.ID = tool.GenerateUUIDV7()
	}
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *Store) ApplyCreditPurchase(ctx context.Context, purchase *models.CreditPurchase, ptx *models.PaymentTransaction) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ptx.ID == "" {
			ptx.ID = tool.GenerateUUIDV7()
		}
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "stripe_payment_id"}}, DoNothing: true}).Create(ptx)
		if res.Error != nil {
			return fmt.Errorf("failed to insert payment transaction: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if purchase.ID == "" {
			purchase.ID = tool.GenerateUUIDV7()
		}
		res = tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "stripe_payment_intent_id"}}, DoNothing: true}).Create(purchase)
		if res.Error != nil {
			return fmt.Errorf("failed to insert credit purchase: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		res = tx.Model(&models.Subscription{}).Where("user_id = ?", purchase.UserID).
			Updates(map[string]any{
				"credits_total":     gorm.Expr("credits_total + ?", purchase.Credits),
				"credits_remaining": gorm.Expr("credits_remaining + ?", purchase.Credits),
				"updated_at":        time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to grant purchased credits: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) ApplyInvoicePayment(ctx context.Context, userID string, reset *store.CreditReset, ptx *models.PaymentTransaction) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ptx.ID == "" {
			ptx.ID = tool.GenerateUUIDV7()
		}
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "stripe_invoice_id"}}, DoNothing: true}).Create(ptx)
		if res.Error != nil {
			return fmt.Errorf("failed to insert payment transaction: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := resetCreditsTx(tx, userID, reset); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func validateFilters(filters []*types.CommonFilter) error {
	for _, f := range filters {
		if err := f.Validate(store.PaymentTransactionFilterFields); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ScanPaymentTransactions(ctx context.Context, req *store.ScanPaymentTransactionsRequest) ([]*models.PaymentTransaction, int64, error) {
	if req == nil {
		return nil, 0, fmt.Errorf("nil request")
	}
	if err := validateFilters(req.Filters); err != nil {
		return nil, 0, err
	}
	if req.SortBy != "" && !lo.Contains(store.PaymentTransactionFilterFields, req.SortBy) {
		return nil, 0, fmt.Errorf("sort on field %q is not allowed", req.SortBy)
	}
	from, size := store.NormalizePage(req.From, req.Size)

	tx := s.db.WithContext(ctx).Model(&models.PaymentTransaction{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd(req.Filters)}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payment transactions: %w", err)
	}

	q := tx.Limit(size)
	if from > 0 {
		q = q.Offset(from)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*models.PaymentTransaction
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payment transactions: %w", err)
	}
	return rows, total, nil
}

func (s *Store) DailyPaymentStats(ctx context.Context, filters []*types.CommonFilter) ([]*store.DailyPaymentStat, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	var rows []*store.DailyPaymentStat
	err := s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') AS date, currency, count(*) AS count, COALESCE(sum(amount), 0) AS amount").
		Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd(filters)}}).
		Where("status = ?", types.PaymentStatusPaid).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("currency").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true}).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate payment transactions: %w", err)
	}
	return rows, nil
}

// UpsertWebhookLog inserts a pending row or resets an existing one for the
// same event id back to pending.
func (s *Store) UpsertWebhookLog(ctx context.Context, l *models.WebhookLog) error {
	if l.ID == "" {
		l.ID = tool.GenerateUUIDV7()
	}
	l.Status = types.WebhookLogStatusPending
	if l.Attempts == 0 {
		l.Attempts = 1
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"type":            l.Type,
			"user_id":         l.UserID,
			"email":           l.Email,
			"amount":          l.Amount,
			"customer_id":     l.CustomerID,
			"subscription_id": l.SubscriptionID,
			"status":          types.WebhookLogStatusPending,
			"error_message":   nil,
			"payload":         l.Payload,
			"trace_id":        l.TraceID,
			"processed_at":    nil,
			"attempts":        gorm.Expr("webhook_logs.attempts + 1"),
			"updated_at":      time.Now(),
		}),
	}).Create(l).Error
}

func (s *Store) MarkWebhookLog(ctx context.Context, eventID string, status types.WebhookLogStatus, errMsg string) error {
	cols := map[string]any{"status": status, "updated_at": time.Now()}
	switch status {
	case types.WebhookLogStatusSuccess:
		cols["processed_at"] = time.Now()
		cols["error_message"] = nil
	case types.WebhookLogStatusFailed:
		cols["error_message"] = errMsg
	}
	res := s.db.WithContext(ctx).Model(&models.WebhookLog{}).Where("event_id = ?", eventID).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to mark webhook log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetWebhookLog(ctx context.Context, eventID string) (*models.WebhookLog, error) {
	var l models.WebhookLog
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&l).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (s *Store) ListWebhookLogs(ctx context.Context, req *store.ListWebhookLogsRequest) ([]*models.WebhookLog, int64, error) {
	if req == nil {
		req = &store.ListWebhookLogsRequest{}
	}
	from, size := store.NormalizePage(req.From, req.Size)
	tx := s.db.WithContext(ctx).Model(&models.WebhookLog{})
	if req.Status != "" {
		tx = tx.Where("status = ?", req.Status)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count webhook logs: %w", err)
	}
	var rows []*models.WebhookLog
	if err := tx.Order("created_at DESC").Offset(from).Limit(size).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list webhook logs: %w", err)
	}
	return rows, total, nil
}
