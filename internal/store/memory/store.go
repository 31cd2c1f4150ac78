package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/pkg/tool"
	"github.com/aiwa-app/aiwa/pkg/types"
)

// Store is an in-process store.Store used by tests and local runs without postgres.
type Store struct {
	mu sync.RWMutex

	// Subscriptions keyed by user id
	subscriptions map[string]*models.Subscription

	usageEvents    []*models.UsageEvent
	anonymousLogs  []*models.AnonymousChatLog
	chatOwnerships map[string]*models.ChatOwnership

	creditPurchases map[string]*models.CreditPurchase
	transactions    []*models.PaymentTransaction

	// Webhook logs keyed by event id
	webhookLogs map[string]*models.WebhookLog

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		subscriptions:   make(map[string]*models.Subscription),
		chatOwnerships:  make(map[string]*models.ChatOwnership),
		creditPurchases: make(map[string]*models.CreditPurchase),
		webhookLogs:     make(map[string]*models.WebhookLog),
		now:             time.Now,
	}
}

// SetClock overrides the time source used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func cloneSub(sub *models.Subscription) *models.Subscription {
	c := *sub
	return &c
}

// Subscription Store implementation
func (s *Store) GetUserSubscription(_ context.Context, userID string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[userID]; ok {
		return cloneSub(sub), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetSubscriptionByStripeID(_ context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.StripeSubscriptionID != nil && *sub.StripeSubscriptionID == stripeSubscriptionID {
			return cloneSub(sub), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.UserID]; exists {
		return store.ErrAlreadyExists
	}
	if sub.ID == "" {
		sub.ID = tool.GenerateUUIDV7()
	}
	now := s.now()
	sub.CreditsRemaining = sub.CreditsTotal - sub.CreditsUsed
	sub.CreatedAt, sub.UpdatedAt = now, now
	s.subscriptions[sub.UserID] = cloneSub(sub)
	return nil
}

func (s *Store) UpdateSubscription(_ context.Context, userID string, upd *store.SubscriptionUpdate) error {
	if upd == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return store.ErrNotFound
	}
	if upd.Plan != nil {
		sub.Plan = *upd.Plan
	}
	if upd.BillingCycle != nil {
		sub.BillingCycle = *upd.BillingCycle
	}
	if upd.Status != nil {
		sub.Status = *upd.Status
	}
	if upd.CreditsTotal != nil {
		sub.CreditsTotal = *upd.CreditsTotal
	}
	if upd.CreditsUsed != nil {
		sub.CreditsUsed = *upd.CreditsUsed
	}
	if upd.CreditsTotal != nil || upd.CreditsUsed != nil {
		sub.CreditsRemaining = sub.CreditsTotal - sub.CreditsUsed
	}
	if upd.StripeCustomerID != nil {
		sub.StripeCustomerID = lo.ToPtr(*upd.StripeCustomerID)
	}
	if upd.StripeSubscriptionID != nil {
		sub.StripeSubscriptionID = lo.ToPtr(*upd.StripeSubscriptionID)
	}
	if upd.StripePriceID != nil {
		sub.StripePriceID = lo.ToPtr(*upd.StripePriceID)
	}
	if upd.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = lo.ToPtr(*upd.CurrentPeriodStart)
	}
	if upd.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = lo.ToPtr(*upd.CurrentPeriodEnd)
	}
	if upd.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *upd.CancelAtPeriodEnd
	}
	if upd.CancelledAt != nil {
		sub.CancelledAt = lo.ToPtr(*upd.CancelledAt)
	}
	sub.UpdatedAt = s.now()
	return nil
}

func (s *Store) resetLocked(userID string, reset *store.CreditReset) error {
	sub, ok := s.subscriptions[userID]
	if !ok {
		return store.ErrNotFound
	}
	if reset == nil {
		reset = &store.CreditReset{}
	}
	if reset.Allowance > 0 {
		sub.CreditsTotal = reset.Allowance
	}
	sub.CreditsUsed = 0
	sub.CreditsRemaining = sub.CreditsTotal
	if reset.Period != nil {
		sub.CurrentPeriodStart = lo.ToPtr(reset.Period.Start)
		sub.CurrentPeriodEnd = lo.ToPtr(reset.Period.End)
	}
	sub.UpdatedAt = s.now()
	return nil
}

func (s *Store) ResetMonthlyCredits(_ context.Context, userID string, reset *store.CreditReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked(userID, reset)
}

func (s *Store) ListSubscriptionsDueForReset(_ context.Context, now time.Time) ([]*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Before(now) {
			continue
		}
		if sub.Status == types.SubscriptionStatusCancelled {
			continue
		}
		result = append(result, cloneSub(sub))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CurrentPeriodEnd.Before(*result[j].CurrentPeriodEnd) })
	return result, nil
}

// Credit metering
func (s *Store) ConsumeCredits(_ context.Context, userID string, cost int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return store.ErrNotFound
	}
	if !sub.HasCredits(cost) {
		return store.ErrInsufficientCredits
	}
	sub.CreditsUsed += cost
	sub.CreditsRemaining -= cost
	sub.UpdatedAt = s.now()
	return nil
}

func (s *Store) RefundCredits(_ context.Context, userID string, cost int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return store.ErrNotFound
	}
	sub.CreditsUsed = max(sub.CreditsUsed-cost, 0)
	sub.CreditsRemaining = sub.CreditsTotal - sub.CreditsUsed
	sub.UpdatedAt = s.now()
	return nil
}

func (s *Store) CreateUsageEvent(_ context.Context, ev *models.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = tool.GenerateUUIDV7()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	c := *ev
	s.usageEvents = append(s.usageEvents, &c)
	return nil
}

func (s *Store) CountUserMessagesSince(_ context.Context, userID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(lo.CountBy(s.usageEvents, func(ev *models.UsageEvent) bool {
		return ev.UserID == userID && !ev.CreatedAt.Before(since)
	})), nil
}

func (s *Store) CountAnonymousMessagesSince(_ context.Context, ip string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(lo.CountBy(s.anonymousLogs, func(l *models.AnonymousChatLog) bool {
		return l.IPAddress == ip && !l.CreatedAt.Before(since)
	})), nil
}

func (s *Store) CreateChatOwnership(_ context.Context, o *models.ChatOwnership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chatOwnerships[o.ChatID]; exists {
		return nil
	}
	if o.ID == "" {
		o.ID = tool.GenerateUUIDV7()
	}
	o.CreatedAt = s.now()
	c := *o
	s.chatOwnerships[o.ChatID] = &c
	return nil
}

func (s *Store) CreateAnonymousChatLog(_ context.Context, l *models.AnonymousChatLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = tool.GenerateUUIDV7()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	c := *l
	s.anonymousLogs = append(s.anonymousLogs, &c)
	return nil
}

// Ledger Store implementation
func (s *Store) hasTransactionLocked(match func(t *models.PaymentTransaction) bool) bool {
	return lo.ContainsBy(s.transactions, match)
}

func (s *Store) insertTransactionLocked(tx *models.PaymentTransaction) {
	if tx.ID == "" {
		tx.ID = tool.GenerateUUIDV7()
	}
	tx.CreatedAt = s.now()
	c := *tx
	s.transactions = append(s.transactions, &c)
}

func (s *Store) ApplyCreditPurchase(_ context.Context, purchase *models.CreditPurchase, tx *models.PaymentTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.StripePaymentID != nil && s.hasTransactionLocked(func(t *models.PaymentTransaction) bool {
		return t.StripePaymentID != nil && *t.StripePaymentID == *tx.StripePaymentID
	}) {
		return false, nil
	}
	if _, exists := s.creditPurchases[purchase.StripePaymentIntentID]; exists {
		return false, nil
	}
	sub, ok := s.subscriptions[purchase.UserID]
	if !ok {
		return false, store.ErrNotFound
	}

	s.insertTransactionLocked(tx)
	if purchase.ID == "" {
		purchase.ID = tool.GenerateUUIDV7()
	}
	purchase.CreatedAt = s.now()
	c := *purchase
	s.creditPurchases[purchase.StripePaymentIntentID] = &c

	sub.CreditsTotal += purchase.Credits
	sub.CreditsRemaining += purchase.Credits
	sub.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) ApplyInvoicePayment(_ context.Context, userID string, reset *store.CreditReset, tx *models.PaymentTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.StripeInvoiceID != nil && s.hasTransactionLocked(func(t *models.PaymentTransaction) bool {
		return t.StripeInvoiceID != nil && *t.StripeInvoiceID == *tx.StripeInvoiceID
	}) {
		return false, nil
	}
	if _, ok := s.subscriptions[userID]; !ok {
		return false, store.ErrNotFound
	}
	s.insertTransactionLocked(tx)
	if err := s.resetLocked(userID, reset); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) filteredTransactionsLocked(filters []*types.CommonFilter) ([]*models.PaymentTransaction, error) {
	for _, f := range filters {
		if err := f.Validate(store.PaymentTransactionFilterFields); err != nil {
			return nil, err
		}
	}
	result := make([]*models.PaymentTransaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if lo.EveryBy(filters, func(f *types.CommonFilter) bool { return matchFilter(transactionColumn(t, f.Field), f) }) {
			c := *t
			result = append(result, &c)
		}
	}
	return result, nil
}

func (s *Store) ScanPaymentTransactions(_ context.Context, req *store.ScanPaymentTransactionsRequest) ([]*models.PaymentTransaction, int64, error) {
	if req == nil {
		return nil, 0, fmt.Errorf("nil request")
	}
	if req.SortBy != "" && !lo.Contains(store.PaymentTransactionFilterFields, req.SortBy) {
		return nil, 0, fmt.Errorf("sort on field %q is not allowed", req.SortBy)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.filteredTransactionsLocked(req.Filters)
	if err != nil {
		return nil, 0, err
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	desc := req.SortOrder != "asc"
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareValues(transactionColumn(rows[i], sortBy), transactionColumn(rows[j], sortBy))
		if desc {
			return c > 0
		}
		return c < 0
	})

	total := int64(len(rows))
	from, size := store.NormalizePage(req.From, req.Size)
	if from > len(rows) {
		from = len(rows)
	}
	end := min(from+size, len(rows))
	return rows[from:end], total, nil
}

func (s *Store) DailyPaymentStats(_ context.Context, filters []*types.CommonFilter) ([]*store.DailyPaymentStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.filteredTransactionsLocked(filters)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*store.DailyPaymentStat)
	for _, t := range rows {
		if t.Status != types.PaymentStatusPaid {
			continue
		}
		date := t.CreatedAt.Format(time.DateOnly)
		key := date + "/" + t.Currency
		st, ok := byKey[key]
		if !ok {
			st = &store.DailyPaymentStat{Date: date, Currency: t.Currency}
			byKey[key] = st
		}
		st.Count++
		st.Amount += t.Amount
	}
	result := lo.Values(byKey)
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date > result[j].Date
		}
		return result[i].Currency < result[j].Currency
	})
	return result, nil
}

// Webhook log Store implementation
func (s *Store) UpsertWebhookLog(_ context.Context, l *models.WebhookLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	l.Status = types.WebhookLogStatusPending
	l.ErrorMessage = nil
	l.ProcessedAt = nil
	l.UpdatedAt = now
	if existing, ok := s.webhookLogs[l.EventID]; ok {
		l.ID = existing.ID
		l.CreatedAt = existing.CreatedAt
		l.Attempts = existing.Attempts + 1
	} else {
		if l.ID == "" {
			l.ID = tool.GenerateUUIDV7()
		}
		l.CreatedAt = now
		l.Attempts = 1
	}
	c := *l
	s.webhookLogs[l.EventID] = &c
	return nil
}

func (s *Store) MarkWebhookLog(_ context.Context, eventID string, status types.WebhookLogStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.webhookLogs[eventID]
	if !ok {
		return store.ErrNotFound
	}
	now := s.now()
	l.Status = status
	l.UpdatedAt = now
	switch status {
	case types.WebhookLogStatusSuccess:
		l.ProcessedAt = lo.ToPtr(now)
		l.ErrorMessage = nil
	case types.WebhookLogStatusFailed:
		l.ErrorMessage = lo.ToPtr(errMsg)
	}
	return nil
}

func (s *Store) GetWebhookLog(_ context.Context, eventID string) (*models.WebhookLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.webhookLogs[eventID]; ok {
		c := *l
		return &c, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListWebhookLogs(_ context.Context, req *store.ListWebhookLogsRequest) ([]*models.WebhookLog, int64, error) {
	if req == nil {
		req = &store.ListWebhookLogsRequest{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*models.WebhookLog, 0)
	for _, l := range s.webhookLogs {
		if req.Status == "" || l.Status == req.Status {
			c := *l
			rows = append(rows, &c)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })

	total := int64(len(rows))
	from, size := store.NormalizePage(req.From, req.Size)
	if from > len(rows) {
		from = len(rows)
	}
	end := min(from+size, len(rows))
	return rows[from:end], total, nil
}

// Counts returns row counts per table, for assertions in tests.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]int{
		"subscriptions":        len(s.subscriptions),
		"usage_events":         len(s.usageEvents),
		"anonymous_chat_logs":  len(s.anonymousLogs),
		"chat_ownerships":      len(s.chatOwnerships),
		"credit_purchases":     len(s.creditPurchases),
		"payment_transactions": len(s.transactions),
		"webhook_logs":         len(s.webhookLogs),
	}
}

// UsageEvents returns a copy of the recorded usage events.
func (s *Store) UsageEvents() []*models.UsageEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Map(s.usageEvents, func(ev *models.UsageEvent, _ int) *models.UsageEvent {
		c := *ev
		return &c
	})
}

// ChatOwner returns the owner recorded for chatID.
func (s *Store) ChatOwner(chatID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.chatOwnerships[chatID]
	if !ok {
		return "", false
	}
	return o.UserID, true
}
