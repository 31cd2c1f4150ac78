package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/internal/app/service/subscription"
	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/platform/v0"
	"github.com/aiwa-app/aiwa/internal/store/memory"
	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/types"
)

type fakeGenerator struct {
	mu        sync.Mutex
	sendCalls int
	sendErr   error
	usage     *v0.Usage
	usageErr  error
	polled    int
}

func (g *fakeGenerator) SendMessage(_ context.Context, req *v0.SendMessageRequest) (*v0.SendMessageResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendCalls++
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	chatID := req.ChatID
	if chatID == "" {
		chatID = "chat_new"
	}
	return &v0.SendMessageResponse{ChatID: chatID, MessageID: "msg_1", Usage: g.usage}, nil
}

func (g *fakeGenerator) GetUsage(context.Context, string, string) (*v0.Usage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polled++
	if g.usageErr != nil {
		return nil, g.usageErr
	}
	return &v0.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7, Model: "v0-1.5-md"}, nil
}

func newTestService(t *testing.T) (*Service, *memory.Store, *fakeGenerator) {
	t.Helper()
	cfg := &config.Config{Chat: config.ChatConfig{
		AnonymousMessagesPerDay: 2,
		CreditsPerMessage:       1,
		UsagePollDelay:          10 * time.Millisecond,
	}}
	log := zap.NewNop().Sugar()
	st := memory.New()
	gen := &fakeGenerator{usage: &v0.Usage{TotalTokens: 42}}
	return NewService(cfg, st, subscription.NewService(st, cfg, log), gen, log), st, gen
}

func seedSub(t *testing.T, st *memory.Store, userID string, total, used int) {
	t.Helper()
	require.NoError(t, st.CreateSubscription(context.Background(), &models.Subscription{
		UserID:       userID,
		Plan:         types.PlanPro,
		BillingCycle: types.BillingCycleMonthly,
		Status:       types.SubscriptionStatusActive,
		CreditsTotal: total,
		CreditsUsed:  used,
	}))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   string
	}{
		{"forwarded first hop", http.Header{"X-Forwarded-For": {"1.1.1.1, 2.2.2.2"}, "X-Real-Ip": {"3.3.3.3"}}, "1.1.1.1"},
		{"real ip fallback", http.Header{"X-Real-Ip": {"3.3.3.3"}}, "3.3.3.3"},
		{"no headers", http.Header{}, UnknownIP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClientIP(tt.header))
		})
	}
}

func TestSend_EmptyMessage(t *testing.T) {
	svc, _, gen := newTestService(t)
	_, err := svc.Send(context.Background(), Caller{UserID: "u1"}, &SendRequest{Message: "  "})
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.Zero(t, gen.sendCalls)
}

func TestSend_NoCreditsSkipsGeneration(t *testing.T) {
	svc, st, gen := newTestService(t)
	seedSub(t, st, "u1", 100, 100)

	_, err := svc.Send(context.Background(), Caller{UserID: "u1"}, &SendRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrInsufficientCredits)
	require.Zero(t, gen.sendCalls)
}

func TestSend_NegativeBalanceSkipsGeneration(t *testing.T) {
	svc, st, gen := newTestService(t)
	seedSub(t, st, "u1", 100, 300)

	_, err := svc.Send(context.Background(), Caller{UserID: "u1"}, &SendRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrInsufficientCredits)
	require.Zero(t, gen.sendCalls)
}

func TestSend_ConsumesCreditAndRecordsUsage(t *testing.T) {
	svc, st, gen := newTestService(t)
	seedSub(t, st, "u1", 100, 0)

	res, err := svc.Send(context.Background(), Caller{UserID: "u1"}, &SendRequest{Message: "build a todo app"})
	require.NoError(t, err)
	require.Equal(t, 1, gen.sendCalls)
	require.Equal(t, "chat_new", res.ChatID)
	require.Equal(t, 99, *res.CreditsRemaining)

	sub, _ := st.GetUserSubscription(context.Background(), "u1")
	require.Equal(t, 1, sub.CreditsUsed)
	require.Equal(t, 99, sub.CreditsRemaining)

	owner, ok := st.ChatOwner("chat_new")
	require.True(t, ok)
	require.Equal(t, "u1", owner)

	events := st.UsageEvents()
	require.Len(t, events, 1)
	require.Equal(t, 42, events[0].TotalTokens)
	require.Equal(t, UsageStatusCompleted, events[0].Status)
}

func TestSend_LazilyCreatesFreeSubscription(t *testing.T) {
	svc, st, _ := newTestService(t)

	_, err := svc.Send(context.Background(), Caller{UserID: "new-user"}, &SendRequest{Message: "hello"})
	require.NoError(t, err)

	sub, err := st.GetUserSubscription(context.Background(), "new-user")
	require.NoError(t, err)
	require.Equal(t, types.PlanFree, sub.Plan)
	require.Equal(t, 9, sub.CreditsRemaining)
}

func TestSend_DailyCapRejects(t *testing.T) {
	svc, st, gen := newTestService(t)
	seedSub(t, st, "u1", 1000, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, st.CreateUsageEvent(context.Background(), &models.UsageEvent{UserID: "u1"}))
	}

	_, err := svc.Send(context.Background(), Caller{UserID: "u1"}, &SendRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrRateLimited)
	require.Zero(t, gen.sendCalls)
}

func TestSend_UpstreamFailureRefunds(t *testing.T) {
	svc, st, gen := newTestService(t)
	seedSub(t, st, "u1", 100, 10)
	gen.sendErr = &v0.APIError{Status: 502, Body: "bad gateway"}

	_, err := svc.Send(context.Background(), Caller{UserID: "u1"}, &SendRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrUpstream)
	var apiErr *v0.APIError
	require.True(t, errors.As(err, &apiErr))

	sub, _ := st.GetUserSubscription(context.Background(), "u1")
	require.Equal(t, 10, sub.CreditsUsed)
	require.Equal(t, 90, sub.CreditsRemaining)
	require.Equal(t, 0, st.Counts()["usage_events"])
}

func TestSend_AnonymousWithoutHeadersSharesUnknownBucket(t *testing.T) {
	svc, st, gen := newTestService(t)
	ctx := context.Background()
	caller := Caller{IP: ClientIP(http.Header{})}

	for i := 0; i < 2; i++ {
		_, err := svc.Send(ctx, caller, &SendRequest{Message: "hi"})
		require.NoError(t, err)
	}
	_, err := svc.Send(ctx, Caller{}, &SendRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, 2, gen.sendCalls)

	n, err := st.CountAnonymousMessagesSince(ctx, UnknownIP, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = svc.Send(ctx, Caller{IP: "9.9.9.9"}, &SendRequest{Message: "hi"})
	require.NoError(t, err)
}

func TestSend_MissingUsageIsPolledLater(t *testing.T) {
	svc, st, gen := newTestService(t)
	seedSub(t, st, "u1", 100, 0)
	gen.usage = nil

	_, err := svc.Send(context.Background(), Caller{UserID: "u1"}, &SendRequest{Message: "hi"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))

	events := st.UsageEvents()
	require.Len(t, events, 1)
	require.Equal(t, 7, events[0].TotalTokens)
	require.Equal(t, "msg_1", events[0].MessageID)
	require.Equal(t, 1, gen.polled)
}

func TestSend_FailedPollStillCountsMessage(t *testing.T) {
	svc, st, gen := newTestService(t)
	seedSub(t, st, "u1", 100, 0)
	gen.usage = nil
	gen.usageErr = v0.ErrNoUsage

	_, err := svc.Send(context.Background(), Caller{UserID: "u1"}, &SendRequest{Message: "hi"})
	require.NoError(t, err)
	require.NoError(t, svc.Wait(context.Background()))

	events := st.UsageEvents()
	require.Len(t, events, 1)
	require.Equal(t, UsageStatusUnavailable, events[0].Status)
	require.Zero(t, events[0].TotalTokens)
}
