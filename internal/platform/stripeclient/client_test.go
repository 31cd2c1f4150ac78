package stripeclient

import (
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/require"
)

func TestSignPayload_RoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.payment_failed","data":{"object":{"id":"in_1"}}}`)
	header := SignPayload(payload, "whsec_test", time.Now())

	ev, err := VerifyEvent(payload, header, "whsec_test")
	require.NoError(t, err)
	require.Equal(t, "evt_1", ev.ID)
	require.EqualValues(t, "invoice.payment_failed", ev.Type)

	_, err = VerifyEvent(payload, header, "whsec_other")
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = VerifyEvent(payload, "", "whsec_test")
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestFromStripe_ReadsFirstItem(t *testing.T) {
	sub := &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusPastDue,
		Customer: &stripe.Customer{ID: "cus_1"},
		Metadata: map[string]string{"userId": "u1"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			CurrentPeriodStart: 1700000000,
			CurrentPeriodEnd:   1702592000,
			Price:              &stripe.Price{ID: "price_1", Recurring: &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalYear}},
		}}},
	}
	ps := FromStripe(sub)
	require.Equal(t, "past_due", ps.Status)
	require.Equal(t, "cus_1", ps.CustomerID)
	require.Equal(t, "price_1", ps.PriceID)
	require.Equal(t, "year", ps.Interval)
	require.Equal(t, int64(1702592000), ps.CurrentPeriodEnd.Unix())
	require.Nil(t, ps.CanceledAt)
	require.Nil(t, FromStripe(nil))
}
