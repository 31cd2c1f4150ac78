package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aiwa-app/aiwa/internal/app/service/webhook_handler"
	"github.com/aiwa-app/aiwa/internal/app/service/webhook_log"
	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/platform/stripeclient"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/pkg/response"
	"github.com/aiwa-app/aiwa/pkg/types"
)

// Stripe caps event payloads well below this.
const maxWebhookBody = 1 << 20

// @Summary      Stripe webhook
// @Description  Verifies the Stripe-Signature header over the raw body, records the event and applies it.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Stripe signature"
// @Success      200  {object}  handlers.WebhookAck
// @Failure      400  {object}  handlers.WebhookError
// @Failure      500  {object}  handlers.WebhookError
// @Router       /api/billing/webhook [post]
func ApiStripeWebhook(h *webhook_handler.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, WebhookError{Error: "failed to read body"})
			return
		}
		if err := h.Handle(c.Request.Context(), payload, c.GetHeader(stripeclient.SignatureHeader)); err != nil {
			if errors.Is(err, stripeclient.ErrInvalidSignature) {
				c.JSON(http.StatusBadRequest, WebhookError{Error: "invalid signature"})
				return
			}
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, WebhookError{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, WebhookAck{Received: true})
	}
}

type ListWebhookLogsResponse struct {
	Items []*models.WebhookLog `json:"items"`
	Total int64                `json:"total"`
	From  int                  `json:"from"`
	Size  int                  `json:"size"`
}

func parseWebhookStatus(raw string) (types.WebhookLogStatus, error) {
	switch raw {
	case "":
		return types.WebhookLogStatusFailed, nil
	case "all":
		return "", nil
	case string(types.WebhookLogStatusPending), string(types.WebhookLogStatusSuccess), string(types.WebhookLogStatusFailed):
		return types.WebhookLogStatus(raw), nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// @Summary      List webhook logs (Admin)
// @Description  Lists recorded webhook events, failed ones by default. status=all lists every state.
// @Tags         Admin
// @Produce      json
// @Param        status query string false "pending, success, failed or all" default(failed)
// @Param        from   query int    false "offset"
// @Param        size   query int    false "page size"
// @Success      200  {object}  handlers.RespWebhookLogs
// @Router       /api/admin/webhooks [get]
func ApiListWebhookLogs(logs *webhook_log.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := parseWebhookStatus(c.Query("status"))
		if err != nil {
			abort(c, http.StatusBadRequest, response.APIResponseCodeBadRequest, err)
			return
		}
		from, err := queryInt(c, "from")
		if err != nil {
			abort(c, http.StatusBadRequest, response.APIResponseCodeBadRequest, err)
			return
		}
		size, err := queryInt(c, "size")
		if err != nil {
			abort(c, http.StatusBadRequest, response.APIResponseCodeBadRequest, err)
			return
		}
		from, size = store.NormalizePage(from, size)

		items, total, err := logs.List(c.Request.Context(), &store.ListWebhookLogsRequest{Status: status, From: from, Size: size})
		if err != nil {
			abort(c, http.StatusInternalServerError, response.APIResponseCodeError, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListWebhookLogsResponse{Items: items, Total: total, From: from, Size: size}))
	}
}

type ResendWebhookRequest struct {
	EventID string `json:"eventId"`
}

// @Summary      Resend webhook (Admin)
// @Description  Redelivers the stored payload of a failed event to the ingestion endpoint with a fresh signature.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body handlers.ResendWebhookRequest true "event to resend"
// @Success      200  {object}  handlers.RespResendWebhook
// @Failure      404  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /api/admin/webhooks/resend [post]
func ApiResendWebhook(h *webhook_handler.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResendWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, response.APIResponseCodeBadRequest, err)
			return
		}
		if req.EventID == "" {
			abort(c, http.StatusBadRequest, response.APIResponseCodeBadRequest, errors.New("eventId is required"))
			return
		}
		res, err := h.Resend(c.Request.Context(), req.EventID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			abort(c, http.StatusNotFound, response.APIResponseCodeNotFound, err)
			return
		case errors.Is(err, webhook_handler.ErrNotResendable):
			abort(c, http.StatusConflict, response.APIResponseCodeConflict, err)
			return
		case err != nil:
			abort(c, http.StatusInternalServerError, response.APIResponseCodeError, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, h *webhook_handler.Handler) {
	r.POST(webhook_handler.WebhookPath, ApiStripeWebhook(h))
}

func RegisterAdminWebhookRoutes(r gin.IRouter, h *webhook_handler.Handler, logs *webhook_log.Service) {
	r.GET("/webhooks", ApiListWebhookLogs(logs))
	r.POST("/webhooks/resend", ApiResendWebhook(h))
}
