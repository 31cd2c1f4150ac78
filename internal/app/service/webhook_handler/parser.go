package webhook_handler

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"gorm.io/datatypes"

	"github.com/aiwa-app/aiwa/internal/models"
)

// EventParser reads a verified provider event. Log fields are derived from the
// loosely typed object so that any event type can be recorded, even one that
// later fails to decode.
type EventParser struct {
	event  stripe.Event
	object map[string]any
}

func NewEventParser(ev stripe.Event) *EventParser {
	p := &EventParser{event: ev}
	if ev.Data != nil {
		p.object = ev.Data.Object
		if p.object == nil && len(ev.Data.Raw) > 0 {
			_ = json.Unmarshal(ev.Data.Raw, &p.object)
		}
	}
	return p
}

func (p *EventParser) GetEventID() string { return p.event.ID }

func (p *EventParser) GetEventType() string { return string(p.event.Type) }

func (p *EventParser) rawObject() []byte {
	if p.event.Data == nil {
		return nil
	}
	return p.event.Data.Raw
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok && v != ""
}

func numberField(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// GetAmount returns amount_total, amount_paid or amount, whichever is present first.
func (p *EventParser) GetAmount() *int64 {
	for _, key := range []string{"amount_total", "amount_paid", "amount"} {
		if n, ok := numberField(p.object, key); ok {
			return &n
		}
	}
	return nil
}

// GetCustomerID only reports bare id strings; expanded objects are ignored.
func (p *EventParser) GetCustomerID() *string {
	if v, ok := stringField(p.object, "customer"); ok {
		return &v
	}
	return nil
}

func (p *EventParser) GetSubscriptionID() *string {
	if v, ok := stringField(p.object, "subscription"); ok {
		return &v
	}
	if p.GetEventType() == EventTypeSubscriptionUpdated || p.GetEventType() == EventTypeSubscriptionDeleted {
		if v, ok := stringField(p.object, "id"); ok {
			return &v
		}
	}
	return nil
}

func (p *EventParser) GetUserID() *string {
	md, _ := p.object["metadata"].(map[string]any)
	if v, ok := stringField(md, metadataUserID); ok {
		return &v
	}
	return nil
}

func (p *EventParser) GetEmail() *string {
	if details, ok := p.object["customer_details"].(map[string]any); ok {
		if v, ok := stringField(details, "email"); ok {
			return &v
		}
	}
	for _, key := range []string{"customer_email", "receipt_email"} {
		if v, ok := stringField(p.object, key); ok {
			return &v
		}
	}
	return nil
}

// GetLog builds the pending log row for this delivery.
func (p *EventParser) GetLog(payload []byte) *models.WebhookLog {
	return &models.WebhookLog{
		EventID:        p.GetEventID(),
		Type:           p.GetEventType(),
		UserID:         p.GetUserID(),
		Email:          p.GetEmail(),
		Amount:         p.GetAmount(),
		CustomerID:     p.GetCustomerID(),
		SubscriptionID: p.GetSubscriptionID(),
		Payload:        datatypes.JSON(payload),
	}
}

func decodeObject[T any](raw []byte, eventType string) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s object: %w", eventType, err)
	}
	return &v, nil
}

func decodeSubscription(raw []byte, eventType string) (*SubscriptionObject, error) {
	sub, err := decodeObject[stripe.Subscription](raw, eventType)
	if err != nil {
		return nil, err
	}
	legacy, err := decodeObject[legacyObjectFields](raw, eventType)
	if err != nil {
		return nil, err
	}
	return &SubscriptionObject{Subscription: sub, legacy: *legacy}, nil
}

func decodeInvoice(raw []byte, eventType string) (*InvoiceObject, error) {
	inv, err := decodeObject[stripe.Invoice](raw, eventType)
	if err != nil {
		return nil, err
	}
	legacy, err := decodeObject[legacyObjectFields](raw, eventType)
	if err != nil {
		return nil, err
	}
	return &InvoiceObject{Invoice: inv, legacy: *legacy}, nil
}

// GetEvent decodes the event into its tagged form.
func (p *EventParser) GetEvent() (Event, error) {
	meta := eventMeta{ID: p.GetEventID(), Type: p.GetEventType()}
	raw := p.rawObject()

	switch meta.Type {
	case EventTypeCheckoutSessionCompleted:
		session, err := decodeObject[stripe.CheckoutSession](raw, meta.Type)
		if err != nil {
			return nil, err
		}
		switch session.Mode {
		case stripe.CheckoutSessionModeSubscription:
			return &CheckoutSubscriptionCompleted{eventMeta: meta, Session: session}, nil
		case stripe.CheckoutSessionModePayment:
			return &CheckoutPaymentCompleted{eventMeta: meta, Session: session}, nil
		default:
			return &Unhandled{eventMeta: meta}, nil
		}
	case EventTypeSubscriptionUpdated, EventTypeSubscriptionDeleted:
		sub, err := decodeSubscription(raw, meta.Type)
		if err != nil {
			return nil, err
		}
		if meta.Type == EventTypeSubscriptionDeleted {
			return &SubscriptionDeleted{eventMeta: meta, Subscription: sub}, nil
		}
		return &SubscriptionUpdated{eventMeta: meta, Subscription: sub}, nil
	case EventTypeInvoicePaymentSucceeded, EventTypeInvoicePaymentFailed:
		inv, err := decodeInvoice(raw, meta.Type)
		if err != nil {
			return nil, err
		}
		if meta.Type == EventTypeInvoicePaymentFailed {
			return &InvoicePaymentFailed{eventMeta: meta, Invoice: inv}, nil
		}
		return &InvoicePaymentSucceeded{eventMeta: meta, Invoice: inv}, nil
	default:
		return &Unhandled{eventMeta: meta}, nil
	}
}
