package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/internal/store/memory"
	"github.com/aiwa-app/aiwa/pkg/types"
)

func seedLedger(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateSubscription(ctx, &models.Subscription{UserID: "u1", Plan: types.PlanPro, CreditsTotal: 100}))

	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	invoice := func(id string, amount int64, currency string) {
		_, err := st.ApplyInvoicePayment(ctx, "u1", nil, &models.PaymentTransaction{
			UserID: "u1", Kind: types.PaymentKindSubscriptionInvoice, Amount: amount,
			Currency: currency, Status: types.PaymentStatusPaid, StripeInvoiceID: lo.ToPtr(id),
		})
		require.NoError(t, err)
	}
	st.SetClock(func() time.Time { return day })
	invoice("in_1", 2000, "usd")
	invoice("in_2", 1500, "eur")
	st.SetClock(func() time.Time { return day.AddDate(0, 0, 1) })
	invoice("in_3", 3000, "usd")
	return st
}

func TestGetDailyPaymentStatistic(t *testing.T) {
	svc := New(seedLedger(t))

	res, err := svc.GetDailyPaymentStatistic(context.Background(), &PaymentStatisticRequest{})
	require.NoError(t, err)
	require.Len(t, res.DataItems, 3)

	require.Equal(t, []PaymentStatisticResponseDataItem{
		{Date: "2026-03-01", Value: 2},
		{Date: "2026-03-02", Value: 1},
	}, res.DataItems[StatisticTypeDailyTransactionCount])

	require.Equal(t, []PaymentStatisticResponseDataItem{
		{Date: "2026-03-01", Label: "eur", Value: 1500},
		{Date: "2026-03-01", Label: "usd", Value: 2000},
		{Date: "2026-03-02", Label: "usd", Value: 5000},
	}, res.DataItems[StatisticTypeTotalRevenue])
}

func TestGetDailyPaymentStatistic_InvalidItem(t *testing.T) {
	svc := New(memory.New())
	_, err := svc.GetDailyPaymentStatistic(context.Background(), &PaymentStatisticRequest{
		DataItems: []*PaymentStatisticDataItem{{ID: "renewal_success_rate"}},
	})
	require.ErrorContains(t, err, "invalid data item id")
}

func TestScanPaymentTransactions_Pagination(t *testing.T) {
	svc := New(seedLedger(t))

	res, err := svc.ScanPaymentTransactions(context.Background(), &store.ScanPaymentTransactionsRequest{
		Filters: []*types.CommonFilter{{Field: "currency", Operator: types.CommonFilterOperatorEq, Values: []any{"usd"}}},
		Size:    1,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Total)
	require.Len(t, res.Items, 1)
	require.Equal(t, 1, res.Size)
}
