package handlers

import (
	"github.com/aiwa-app/aiwa/internal/app/service/chat"
	"github.com/aiwa-app/aiwa/internal/app/service/credit_reset"
	"github.com/aiwa-app/aiwa/internal/app/service/statistics"
	"github.com/aiwa-app/aiwa/internal/app/service/webhook_handler"
	"github.com/aiwa-app/aiwa/pkg/response"
	"github.com/aiwa-app/aiwa/pkg/types"
)

// WebhookAck is the raw body Stripe expects on success.
type WebhookAck struct {
	Received bool `json:"received"`
}

type WebhookError struct {
	Error string `json:"error"`
}

// RespOK is a generic envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespWebhookLogs struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListWebhookLogsResponse  `json:"data"`
}

type RespResendWebhook struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    webhook_handler.ResendResult `json:"data"`
}

type RespChat struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    chat.SendResult          `json:"data"`
}

type RespCredits struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    types.UserCreditsInfo    `json:"data"`
}

type RespResetCredits struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    credit_reset.Result      `json:"data"`
}

type RespScanPaymentTransactions struct {
	Code    response.APIResponseCode                   `json:"code"`
	Message string                                     `json:"message"`
	Data    statistics.ScanPaymentTransactionsResponse `json:"data"`
}

type RespPaymentStatistic struct {
	Code    response.APIResponseCode            `json:"code"`
	Message string                              `json:"message"`
	Data    statistics.PaymentStatisticResponse `json:"data"`
}
