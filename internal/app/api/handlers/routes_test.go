package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mw "github.com/aiwa-app/aiwa/internal/app/api/middleware"
	"github.com/aiwa-app/aiwa/internal/app/service/chat"
	"github.com/aiwa-app/aiwa/internal/app/service/credit_reset"
	"github.com/aiwa-app/aiwa/internal/app/service/statistics"
	"github.com/aiwa-app/aiwa/internal/app/service/subscription"
	"github.com/aiwa-app/aiwa/internal/app/service/webhook_handler"
	"github.com/aiwa-app/aiwa/internal/app/service/webhook_log"
	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/platform/redis"
	"github.com/aiwa-app/aiwa/internal/platform/stripeclient"
	"github.com/aiwa-app/aiwa/internal/platform/v0"
	"github.com/aiwa-app/aiwa/internal/store/memory"
	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/types"
)

const (
	jwtSecret     = "jwt-test"
	cronSecret    = "cron-test"
	webhookSecret = "whsec_test"
)

type stubFetcher struct{}

func (stubFetcher) GetSubscription(context.Context, string) (*stripeclient.ProviderSubscription, error) {
	return nil, errors.New("stripe unavailable")
}

type stubGenerator struct{ calls int }

func (g *stubGenerator) SendMessage(_ context.Context, req *v0.SendMessageRequest) (*v0.SendMessageResponse, error) {
	g.calls++
	return &v0.SendMessageResponse{ChatID: "chat_1", MessageID: "msg_1", Usage: &v0.Usage{TotalTokens: 10}}, nil
}

func (g *stubGenerator) GetUsage(context.Context, string, string) (*v0.Usage, error) {
	return nil, v0.ErrNoUsage
}

type testEnv struct {
	router  *gin.Engine
	st      *memory.Store
	webhook *webhook_handler.Handler
	gen     *stubGenerator

	cacheErr error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Stripe: config.StripeConfig{WebhookSecret: webhookSecret},
		Chat:   config.ChatConfig{AnonymousMessagesPerDay: 1, CreditsPerMessage: 1},
	}
	log := zap.NewNop().Sugar()
	st := memory.New()
	subs := subscription.NewService(st, cfg, log)
	logs := webhook_log.New(st, log)
	wh := webhook_handler.NewHandler(cfg, logs, subs, st, stubFetcher{}, log)
	gen := &stubGenerator{}
	e := &testEnv{st: st, webhook: wh, gen: gen}

	r := gin.New()
	r.Use(mw.TraceMiddleware(), mw.RequestLoggerMiddleware(log))
	RegisterHealthRoutes(r,
		ReadinessCheck{Name: "store", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "cache", Check: func(context.Context) error { return e.cacheErr }},
	)
	RegisterWebhookRoutes(r, wh)
	api := r.Group("/api")
	RegisterChatRoutes(api, jwtSecret, chat.NewService(cfg, st, subs, gen, log), subs)
	RegisterCronRoutes(api, cronSecret, credit_reset.NewService(cfg, st, subs, redis.NewLocalLocker(), log))
	admin := api.Group("/admin", mw.RequireAuth(jwtSecret), mw.RequireRole(mw.RoleAdmin))
	RegisterAdminWebhookRoutes(admin, wh, logs)
	RegisterAdminPaymentRoutes(admin, statistics.New(st))

	e.router = r
	return e
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := mw.IssueToken(jwtSecret, userID, userID+"@example.com", role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (e *testEnv) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func event(t *testing.T, id, eventType string, object map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id": id, "object": "event", "type": eventType, "created": time.Now().Unix(),
		"data": map[string]any{"object": object},
	})
	require.NoError(t, err)
	return b
}

func signed(payload []byte) map[string]string {
	return map[string]string{stripeclient.SignatureHeader: stripeclient.SignPayload(payload, webhookSecret, time.Now())}
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestReadyz(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var results map[string]string
	decode(t, w, &results)
	require.Equal(t, map[string]string{"store": "ok", "cache": "ok"}, results)

	e.cacheErr = errors.New("connection refused")
	w = e.do(http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	env := decode(t, w, &results)
	require.Equal(t, 50300, env.Code)
	require.Equal(t, "ok", results["store"])
	require.Equal(t, "connection refused", results["cache"])
}

func TestStripeWebhook_Responses(t *testing.T) {
	e := newTestEnv(t)

	payload := event(t, "evt_unknown", "customer.created", map[string]any{"id": "cus_1"})
	w := e.do(http.MethodPost, webhook_handler.WebhookPath, payload, map[string]string{stripeclient.SignatureHeader: "t=1,v1=bad"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"invalid signature"}`, w.Body.String())

	w = e.do(http.MethodPost, webhook_handler.WebhookPath, payload, signed(payload))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"received":true}`, w.Body.String())

	failing := event(t, "evt_failed", "invoice.payment_failed", map[string]any{"id": "in_1", "subscription": "sub_x"})
	w = e.do(http.MethodPost, webhook_handler.WebhookPath, failing, signed(failing))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), `"error"`)
}

func TestAdminWebhooks_ListAndResend(t *testing.T) {
	e := newTestEnv(t)
	ok := event(t, "evt_ok", "customer.created", map[string]any{"id": "cus_1"})
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, webhook_handler.WebhookPath, ok, signed(ok)).Code)
	failing := event(t, "evt_failed", "invoice.payment_failed", map[string]any{"id": "in_1", "subscription": "sub_x"})
	require.Equal(t, http.StatusInternalServerError, e.do(http.MethodPost, webhook_handler.WebhookPath, failing, signed(failing)).Code)

	admin := map[string]string{"Authorization": bearer(t, "root", mw.RoleAdmin)}

	require.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/admin/webhooks", nil, map[string]string{"Authorization": bearer(t, "u1", mw.RoleUser)}).Code)
	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/admin/webhooks", nil, nil).Code)
	require.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/admin/webhooks?status=bogus", nil, admin).Code)

	var list ListWebhookLogsResponse
	w := e.do(http.MethodGet, "/api/admin/webhooks", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, "evt_failed", list.Items[0].EventID)

	w = e.do(http.MethodGet, "/api/admin/webhooks?status=all", nil, admin)
	decode(t, w, &list)
	require.EqualValues(t, 2, list.Total)

	require.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/admin/webhooks/resend", []byte(`{}`), admin).Code)
	require.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/api/admin/webhooks/resend", []byte(`{"eventId":"evt_missing"}`), admin).Code)
	require.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/api/admin/webhooks/resend", []byte(`{"eventId":"evt_ok"}`), admin).Code)

	// the local row now resolves the owner, so the redelivery succeeds
	require.NoError(t, e.st.CreateSubscription(context.Background(), &models.Subscription{
		UserID: "u1", Plan: types.PlanPro, BillingCycle: types.BillingCycleMonthly,
		Status: types.SubscriptionStatusActive, CreditsTotal: 100, StripeSubscriptionID: lo.ToPtr("sub_x"),
	}))
	srv := httptest.NewServer(e.router)
	defer srv.Close()
	e.webhook.SetRedeliveryTarget(srv.URL+webhook_handler.WebhookPath, srv.Client())

	var res webhook_handler.ResendResult
	w = e.do(http.MethodPost, "/api/admin/webhooks/resend", []byte(`{"eventId":"evt_failed"}`), admin)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	require.Equal(t, http.StatusOK, res.StatusCode)

	row, err := e.st.GetWebhookLog(context.Background(), "evt_failed")
	require.NoError(t, err)
	require.Equal(t, types.WebhookLogStatusSuccess, row.Status)
	sub, err := e.st.GetUserSubscription(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusPastDue, sub.Status)
}

func TestChat_StatusMapping(t *testing.T) {
	e := newTestEnv(t)
	user := map[string]string{"Authorization": bearer(t, "u1", mw.RoleUser)}

	require.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/chat", []byte(`{"message":""}`), user).Code)
	require.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/chat", []byte(`not json`), user).Code)
	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/api/chat", []byte(`{"message":"hi"}`), map[string]string{"Authorization": "Bearer nope"}).Code)

	require.NoError(t, e.st.CreateSubscription(context.Background(), &models.Subscription{
		UserID: "broke", Plan: types.PlanPro, BillingCycle: types.BillingCycleMonthly,
		Status: types.SubscriptionStatusActive, CreditsTotal: 100, CreditsUsed: 100,
	}))
	w := e.do(http.MethodPost, "/api/chat", []byte(`{"message":"hi"}`), map[string]string{"Authorization": bearer(t, "broke", mw.RoleUser)})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	require.Equal(t, 0, e.gen.calls)

	var res chat.SendResult
	w = e.do(http.MethodPost, "/api/chat", []byte(`{"message":"hi"}`), user)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	require.Equal(t, "chat_1", res.ChatID)
	require.NotNil(t, res.CreditsRemaining)
	require.Equal(t, 9, *res.CreditsRemaining)
}

func TestChat_AnonymousRateLimit(t *testing.T) {
	e := newTestEnv(t)
	ip := map[string]string{"X-Forwarded-For": "9.9.9.9"}

	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/chat", []byte(`{"message":"hi"}`), ip).Code)
	w := e.do(http.MethodPost, "/api/chat", []byte(`{"message":"again"}`), ip)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, 1, e.gen.calls)

	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/chat", []byte(`{"message":"hi"}`), map[string]string{"X-Real-IP": "8.8.8.8"}).Code)
}

func TestCredits(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/credits", nil, nil).Code)

	var info types.UserCreditsInfo
	w := e.do(http.MethodGet, "/api/credits", nil, map[string]string{"Authorization": bearer(t, "u2", mw.RoleUser)})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &info)
	require.Equal(t, types.PlanFree, info.Plan)
	require.Equal(t, info.CreditsTotal, info.CreditsRemaining)
}

func TestResetCredits(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/cron/reset-credits", nil, nil).Code)
	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/cron/reset-credits", nil, map[string]string{"Authorization": "Bearer wrong"}).Code)

	require.NoError(t, e.st.CreateSubscription(context.Background(), &models.Subscription{
		UserID: "u1", Plan: types.PlanPro, BillingCycle: types.BillingCycleMonthly,
		Status: types.SubscriptionStatusActive, CreditsTotal: 100, CreditsUsed: 40,
		CurrentPeriodEnd: lo.ToPtr(time.Now().Add(-time.Hour)),
	}))

	var res credit_reset.Result
	w := e.do(http.MethodGet, "/api/cron/reset-credits", nil, map[string]string{"Authorization": "Bearer " + cronSecret})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	require.Equal(t, 1, res.Due)
	require.Equal(t, 1, res.Processed)

	sub, err := e.st.GetUserSubscription(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 100, sub.CreditsRemaining)
}

func TestAdminPayments(t *testing.T) {
	e := newTestEnv(t)
	admin := map[string]string{"Authorization": bearer(t, "root", mw.RoleAdmin)}

	require.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/admin/payments/list", []byte(`[`), admin).Code)

	var page statistics.ScanPaymentTransactionsResponse
	w := e.do(http.MethodPost, "/api/admin/payments/list", []byte(`{"size":5}`), admin)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	require.EqualValues(t, 0, page.Total)
	require.Equal(t, 5, page.Size)

	w = e.do(http.MethodPost, "/api/admin/payments/list", []byte(`{"filters":[{"field":"password","operator":"eq","values":["x"]}]}`), admin)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	w = e.do(http.MethodPost, "/api/admin/payments/stats", []byte(`{"data_items":[{"id":"daily_revenue"}]}`), admin)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodPost, "/api/admin/payments/stats", []byte(`{"data_items":[{"id":"bogus"}]}`), admin)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
