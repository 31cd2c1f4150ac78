package webhook_handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aiwa-app/aiwa/internal/platform/stripeclient"
	"github.com/aiwa-app/aiwa/pkg/logctx"
	"github.com/aiwa-app/aiwa/pkg/types"
)

// ErrNotResendable is returned for rows that are not in the failed state.
var ErrNotResendable = errors.New("webhook: only failed events can be resent")

// ResendResult is the outcome of redelivering a stored event to the ingestion endpoint.
type ResendResult struct {
	EventID    string `json:"event_id"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// SetRedeliveryTarget points Resend at another ingestion endpoint.
func (h *Handler) SetRedeliveryTarget(endpoint string, client *http.Client) {
	h.endpoint = endpoint
	if client != nil {
		h.httpClient = client
	}
}

// Resend re-posts the stored raw payload of a failed event with a fresh
// signature. The delivery runs through Handle like any other, so the same
// log row is overwritten with the new outcome.
func (h *Handler) Resend(ctx context.Context, eventID string) (*ResendResult, error) {
	row, err := h.logs.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if row.Status != types.WebhookLogStatusFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotResendable, eventID, row.Status)
	}
	if len(row.Payload) == 0 {
		return nil, fmt.Errorf("webhook log %s has no stored payload", eventID)
	}

	payload := []byte(row.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build redelivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(stripeclient.SignatureHeader, stripeclient.SignPayload(payload, h.cfg.Stripe.WebhookSecret, time.Now()))

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to redeliver %s: %w", eventID, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	logctx.FromCtx(ctx, h.log).Infow("webhook resent", "event_id", eventID, "status_code", resp.StatusCode)
	return &ResendResult{EventID: eventID, StatusCode: resp.StatusCode, Body: string(body)}, nil
}
