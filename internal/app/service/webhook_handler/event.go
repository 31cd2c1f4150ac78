package webhook_handler

import (
	"time"

	"github.com/stripe/stripe-go/v82"
)

// Event is the closed set of provider events the billing service reacts to.
// dispatch switches over every member; the unexported marker keeps the set
// closed to this package.
type Event interface {
	EventID() string
	EventType() string
	isEvent()
}

type eventMeta struct {
	ID   string
	Type string
}

func (m eventMeta) EventID() string   { return m.ID }
func (m eventMeta) EventType() string { return m.Type }
func (eventMeta) isEvent()            {}

// CheckoutSubscriptionCompleted is checkout.session.completed in subscription mode.
type CheckoutSubscriptionCompleted struct {
	eventMeta
	Session *stripe.CheckoutSession
}

// CheckoutPaymentCompleted is checkout.session.completed in payment mode (credit top-up).
type CheckoutPaymentCompleted struct {
	eventMeta
	Session *stripe.CheckoutSession
}

type SubscriptionUpdated struct {
	eventMeta
	Subscription *SubscriptionObject
}

type SubscriptionDeleted struct {
	eventMeta
	Subscription *SubscriptionObject
}

type InvoicePaymentSucceeded struct {
	eventMeta
	Invoice *InvoiceObject
}

type InvoicePaymentFailed struct {
	eventMeta
	Invoice *InvoiceObject
}

// Unhandled covers every other type, including checkout modes we do not bill.
type Unhandled struct {
	eventMeta
}

const (
	EventTypeCheckoutSessionCompleted = "checkout.session.completed"
	EventTypeSubscriptionUpdated      = "customer.subscription.updated"
	EventTypeSubscriptionDeleted      = "customer.subscription.deleted"
	EventTypeInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventTypeInvoicePaymentFailed     = "invoice.payment_failed"
)

const metadataUserID = "userId"

func unixOrZero(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// legacyObjectFields are top-level fields that API versions before 2025-03-31
// still send and stripe-go v82 no longer models. Expandable fields reuse the
// stripe types so a bare id and an expanded object decode the same way.
type legacyObjectFields struct {
	Subscription       *stripe.Subscription  `json:"subscription"`
	PaymentIntent      *stripe.PaymentIntent `json:"payment_intent"`
	CurrentPeriodStart int64                 `json:"current_period_start"`
	CurrentPeriodEnd   int64                 `json:"current_period_end"`
}

// SubscriptionObject is a provider subscription plus its legacy period bounds.
type SubscriptionObject struct {
	*stripe.Subscription
	legacy legacyObjectFields
}

// Period prefers the item-level bounds over the legacy top-level ones.
func (s *SubscriptionObject) Period() (time.Time, time.Time) {
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].CurrentPeriodEnd > 0 {
		it := s.Items.Data[0]
		return unixOrZero(it.CurrentPeriodStart), unixOrZero(it.CurrentPeriodEnd)
	}
	return unixOrZero(s.legacy.CurrentPeriodStart), unixOrZero(s.legacy.CurrentPeriodEnd)
}

// InvoiceObject is a provider invoice plus the legacy subscription and
// payment intent references.
type InvoiceObject struct {
	*stripe.Invoice
	legacy legacyObjectFields
}

func (inv *InvoiceObject) subscriptionDetails() *stripe.InvoiceParentSubscriptionDetails {
	if inv.Parent == nil {
		return nil
	}
	return inv.Parent.SubscriptionDetails
}

// SubscriptionID resolves the subscription through the current
// parent.subscription_details shape, then the legacy top-level field.
func (inv *InvoiceObject) SubscriptionID() string {
	if d := inv.subscriptionDetails(); d != nil && d.Subscription != nil && d.Subscription.ID != "" {
		return d.Subscription.ID
	}
	if inv.legacy.Subscription != nil {
		return inv.legacy.Subscription.ID
	}
	return ""
}

func (inv *InvoiceObject) PaymentIntentID() string {
	if inv.legacy.PaymentIntent != nil {
		return inv.legacy.PaymentIntent.ID
	}
	return ""
}

// MetadataUserID looks at the invoice metadata, then the subscription details snapshot.
func (inv *InvoiceObject) MetadataUserID() string {
	if v := inv.Metadata[metadataUserID]; v != "" {
		return v
	}
	if d := inv.subscriptionDetails(); d != nil {
		return d.Metadata[metadataUserID]
	}
	return ""
}
