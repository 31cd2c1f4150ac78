package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/internal/app/service/subscription"
	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/platform/v0"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/logctx"
	"github.com/aiwa-app/aiwa/pkg/metrics"
	"github.com/aiwa-app/aiwa/pkg/tool"
)

var (
	ErrEmptyMessage        = errors.New("chat: message is required")
	ErrRateLimited         = errors.New("chat: daily message limit reached")
	ErrNoSubscription      = errors.New("chat: no subscription")
	ErrInsufficientCredits = errors.New("chat: insufficient credits")
	ErrUpstream            = errors.New("chat: generation failed")
)

// UnknownIP is the shared rate-limit bucket of anonymous callers without proxy headers.
const UnknownIP = "unknown"

const rateWindow = 24 * time.Hour

// Usage event statuses.
const (
	UsageStatusCompleted   = "completed"
	UsageStatusUnavailable = "usage_unavailable"
)

// ClientIP takes the first X-Forwarded-For hop, then X-Real-IP.
func ClientIP(h http.Header) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if rip := strings.TrimSpace(h.Get("X-Real-IP")); rip != "" {
		return rip
	}
	return UnknownIP
}

// Caller identifies who sends a message. An empty UserID is anonymous.
type Caller struct {
	UserID string
	IP     string
}

type SendRequest struct {
	Message     string          `json:"message"`
	ChatID      string          `json:"chatId,omitempty"`
	Streaming   bool            `json:"streaming,omitempty"`
	Attachments []v0.Attachment `json:"attachments,omitempty"`
	ProjectID   string          `json:"projectId,omitempty"`
}

type SendResult struct {
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	WebURL    string    `json:"webUrl,omitempty"`
	DemoURL   string    `json:"demoUrl,omitempty"`
	Usage     *v0.Usage `json:"usage,omitempty"`
	// CreditsRemaining is nil for anonymous callers
	CreditsRemaining *int `json:"creditsRemaining,omitempty"`
}

type Service struct {
	cfg   *config.Config
	store store.Store
	subs  *subscription.Service
	gen   v0.Generator
	log   *zap.SugaredLogger
	now   func() time.Time

	// pending detached usage polls
	polls sync.WaitGroup
}

func NewService(cfg *config.Config, st store.Store, subs *subscription.Service, gen v0.Generator, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, store: st, subs: subs, gen: gen, log: log, now: time.Now}
}

func (s *Service) creditCost() int {
	if s.cfg.Chat.CreditsPerMessage > 0 {
		return s.cfg.Chat.CreditsPerMessage
	}
	return 1
}

func reject(reason string, err error) error {
	metrics.ChatGateRejections.WithLabelValues(reason).Inc()
	return err
}

// Send gates the message on rate limits and credits, then forwards it to the
// generation API. Gate errors are the package sentinels.
func (s *Service) Send(ctx context.Context, caller Caller, req *SendRequest) (*SendResult, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, reject("empty_message", ErrEmptyMessage)
	}
	if caller.UserID == "" {
		return s.sendAnonymous(ctx, caller, req)
	}
	return s.sendAuthenticated(ctx, caller.UserID, req)
}

func (s *Service) sendAuthenticated(ctx context.Context, userID string, req *SendRequest) (*SendResult, error) {
	lg := logctx.FromCtx(ctx, s.log)

	ensured, err := s.subs.EnsureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	sent, err := s.store.CountUserMessagesSince(ctx, userID, s.now().Add(-rateWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if limit := s.subs.DailyMessageCap(ensured.Plan); limit > 0 && sent >= int64(limit) {
		return nil, reject("rate_limited", fmt.Errorf("%w: %d of %d", ErrRateLimited, sent, limit))
	}

	sub, err := s.store.GetUserSubscription(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, reject("no_subscription", ErrNoSubscription)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	cost := s.creditCost()
	if !sub.HasCredits(cost) {
		return nil, reject("insufficient_credits", ErrInsufficientCredits)
	}
	switch err := s.store.ConsumeCredits(ctx, userID, cost); {
	case errors.Is(err, store.ErrInsufficientCredits):
		return nil, reject("insufficient_credits", ErrInsufficientCredits)
	case errors.Is(err, store.ErrNotFound):
		return nil, reject("no_subscription", ErrNoSubscription)
	case err != nil:
		return nil, fmt.Errorf("failed to consume credits: %w", err)
	}

	resp, err := s.generate(ctx, req)
	if err != nil {
		if rerr := s.store.RefundCredits(ctx, userID, cost); rerr != nil {
			lg.Errorw("failed to refund credit after upstream failure", "user_id", userID, "err", rerr)
		}
		return nil, reject("upstream", err)
	}

	messageID := resp.MessageID
	if messageID == "" {
		messageID = tool.GenerateChatMessageID()
	}
	if err := s.store.CreateChatOwnership(ctx, &models.ChatOwnership{ChatID: resp.ChatID, UserID: userID}); err != nil {
		lg.Warnw("failed to record chat ownership", "chat_id", resp.ChatID, "err", err)
	}
	if resp.Usage != nil {
		s.recordUsage(ctx, userID, resp.ChatID, messageID, resp.Usage, UsageStatusCompleted)
	} else {
		s.pollUsageLater(ctx, userID, resp.ChatID, messageID)
	}

	remaining := sub.CreditsRemaining - cost
	return &SendResult{
		ChatID:           resp.ChatID,
		MessageID:        messageID,
		WebURL:           resp.WebURL,
		DemoURL:          resp.DemoURL,
		Usage:            resp.Usage,
		CreditsRemaining: &remaining,
	}, nil
}

func (s *Service) sendAnonymous(ctx context.Context, caller Caller, req *SendRequest) (*SendResult, error) {
	ip := caller.IP
	if ip == "" {
		ip = UnknownIP
	}
	sent, err := s.store.CountAnonymousMessagesSince(ctx, ip, s.now().Add(-rateWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count anonymous messages: %w", err)
	}
	if limit := s.cfg.Chat.AnonymousMessagesPerDay; sent >= int64(limit) {
		return nil, reject("rate_limited", fmt.Errorf("%w: %d of %d", ErrRateLimited, sent, limit))
	}

	resp, err := s.generate(ctx, req)
	if err != nil {
		return nil, reject("upstream", err)
	}
	if err := s.store.CreateAnonymousChatLog(ctx, &models.AnonymousChatLog{IPAddress: ip, ChatID: resp.ChatID}); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to record anonymous chat", "ip", ip, "chat_id", resp.ChatID, "err", err)
	}
	messageID := resp.MessageID
	if messageID == "" {
		messageID = tool.GenerateChatMessageID()
	}
	return &SendResult{
		ChatID:    resp.ChatID,
		MessageID: messageID,
		WebURL:    resp.WebURL,
		DemoURL:   resp.DemoURL,
		Usage:     resp.Usage,
	}, nil
}

func (s *Service) generate(ctx context.Context, req *SendRequest) (*v0.SendMessageResponse, error) {
	start := time.Now()
	resp, err := s.gen.SendMessage(ctx, &v0.SendMessageRequest{
		ChatID:      req.ChatID,
		Message:     req.Message,
		Streaming:   req.Streaming,
		Attachments: req.Attachments,
		ProjectID:   req.ProjectID,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.GenerationDuration.WithLabelValues(status).Observe(metrics.MillisecondsSince(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return resp, nil
}

func (s *Service) recordUsage(ctx context.Context, userID, chatID, messageID string, u *v0.Usage, status string) {
	ev := &models.UsageEvent{
		UserID:    userID,
		ChatID:    chatID,
		MessageID: messageID,
		Status:    status,
	}
	if u != nil {
		ev.PromptTokens = u.PromptTokens
		ev.CompletionTokens = u.CompletionTokens
		ev.TotalTokens = u.TotalTokens
		ev.Model = u.Model
	}
	if err := s.store.CreateUsageEvent(ctx, ev); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to record usage", "user_id", userID, "chat_id", chatID, "err", err)
	}
}

// pollUsageLater asks for the usage report once after the configured delay.
// The request context is detached so the poll outlives the response.
func (s *Service) pollUsageLater(ctx context.Context, userID, chatID, messageID string) {
	delay := s.cfg.Chat.UsagePollDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	detached := context.WithoutCancel(ctx)

	s.polls.Add(1)
	time.AfterFunc(delay, func() {
		defer s.polls.Done()
		pollCtx, cancel := context.WithTimeout(detached, 30*time.Second)
		defer cancel()

		u, err := s.gen.GetUsage(pollCtx, chatID, messageID)
		if err != nil {
			logctx.FromCtx(detached, s.log).Warnw("usage poll failed", "chat_id", chatID, "message_id", messageID, "err", err)
			s.recordUsage(pollCtx, userID, chatID, messageID, nil, UsageStatusUnavailable)
			return
		}
		s.recordUsage(pollCtx, userID, chatID, messageID, u, UsageStatusCompleted)
	})
}

// Wait blocks until pending usage polls finish or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.polls.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func registerPollDrain(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{OnStop: s.Wait})
}

var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(registerPollDrain),
)
