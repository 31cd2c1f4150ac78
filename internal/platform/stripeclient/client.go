package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/pkg/config"
)

// SignatureHeader carries the provider signature of a webhook delivery.
const SignatureHeader = "Stripe-Signature"

var ErrInvalidSignature = errors.New("stripe: invalid webhook signature")

// ProviderSubscription is the subset of a provider subscription the billing
// handlers read. Zero times mean the provider did not report a period.
type ProviderSubscription struct {
	ID                 string
	Status             string
	CustomerID         string
	PriceID            string
	Interval           string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	Metadata           map[string]string
}

// SubscriptionFetcher loads a subscription from the payment provider.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
}

type Client struct {
	log *zap.SugaredLogger
}

var _ SubscriptionFetcher = (*Client)(nil)

func New(cfg *config.Config, log *zap.SugaredLogger) *Client {
	stripe.Key = cfg.Stripe.SecretKey
	if cfg.Stripe.SecretKey == "" {
		log.Warnw("stripe secret key is empty; subscription lookups will fail")
	}
	return &Client{log: log}
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscriptionpkg.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe subscription %s: %w", id, err)
	}
	return FromStripe(sub), nil
}

// FromStripe flattens the provider object. Period bounds and price live on
// the first subscription item.
func FromStripe(sub *stripe.Subscription) *ProviderSubscription {
	if sub == nil {
		return nil
	}
	ps := &ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		ps.CustomerID = sub.Customer.ID
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0)
		ps.CanceledAt = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.CurrentPeriodStart > 0 {
			ps.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0)
		}
		if item.CurrentPeriodEnd > 0 {
			ps.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0)
		}
		if item.Price != nil {
			ps.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				ps.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	return ps
}

// VerifyEvent checks the signature header over the raw payload. The account
// API version is not enforced; handlers decode the object fields they need.
func VerifyEvent(payload []byte, header, secret string) (stripe.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ev, nil
}

// SignPayload produces a valid signature header for payload, used when the
// service redelivers a stored event to itself.
func SignPayload(payload []byte, secret string, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}

var Module = fx.Options(
	fx.Provide(
		New,
		func(c *Client) SubscriptionFetcher { return c },
	),
)
