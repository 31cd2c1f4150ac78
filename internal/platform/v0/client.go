package v0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/pkg/config"
	"github.com/aiwa-app/aiwa/pkg/logctx"
)

type Attachment struct {
	URL string `json:"url"`
}

type SendMessageRequest struct {
	// ChatID continues an existing chat; empty starts a new one
	ChatID      string
	Message     string
	Streaming   bool
	Attachments []Attachment
	ProjectID   string
}

type Usage struct {
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	TotalTokens      int    `json:"totalTokens"`
	Model            string `json:"model,omitempty"`
}

type SendMessageResponse struct {
	ChatID    string
	MessageID string
	WebURL    string
	DemoURL   string
	// Usage is nil when the API did not report token counts inline
	Usage *Usage
	Raw   json.RawMessage
}

// Generator is the chat generation API.
type Generator interface {
	SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error)
	GetUsage(ctx context.Context, chatID, messageID string) (*Usage, error)
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("v0 api: status %d: %s", e.Status, e.Body)
}

var ErrNoUsage = errors.New("v0 api: usage not available")

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.SugaredLogger
}

var _ Generator = (*Client)(nil)

func New(cfg *config.Config, log *zap.SugaredLogger) *Client {
	return NewWithHTTPClient(cfg.V0.BaseURL, cfg.V0.APIKey, &http.Client{Timeout: cfg.V0.Timeout}, log)
}

func NewWithHTTPClient(baseURL, apiKey string, hc *http.Client, log *zap.SugaredLogger) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: hc, log: log}
}

type chatBody struct {
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ProjectID   string       `json:"projectId,omitempty"`
	// the gate always waits for the full reply
	ResponseMode string `json:"responseMode"`
	Streaming    bool   `json:"streaming,omitempty"`
}

type chatResponse struct {
	ID            string `json:"id"`
	ChatID        string `json:"chatId"`
	WebURL        string `json:"webUrl"`
	LatestVersion *struct {
		DemoURL string `json:"demoUrl"`
	} `json:"latestVersion"`
	Messages []struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"messages"`
	MessageID string `json:"messageId"`
	Usage     *Usage `json:"usage"`
}

func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	body := chatBody{
		Message:      req.Message,
		Attachments:  req.Attachments,
		ProjectID:    req.ProjectID,
		ResponseMode: "sync",
		Streaming:    req.Streaming,
	}
	path := "/chats"
	if req.ChatID != "" {
		path = "/chats/" + url.PathEscape(req.ChatID) + "/messages"
	}
	raw, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("v0 api: decode chat response: %w", err)
	}

	out := &SendMessageResponse{ChatID: cr.ChatID, MessageID: cr.MessageID, WebURL: cr.WebURL, Usage: cr.Usage, Raw: raw}
	if out.ChatID == "" {
		out.ChatID = cr.ID
	}
	if out.ChatID == "" {
		out.ChatID = req.ChatID
	}
	if cr.LatestVersion != nil {
		out.DemoURL = cr.LatestVersion.DemoURL
	}
	if out.MessageID == "" {
		for i := len(cr.Messages) - 1; i >= 0; i-- {
			if cr.Messages[i].Role == "assistant" {
				out.MessageID = cr.Messages[i].ID
				break
			}
		}
	}
	return out, nil
}

type usageReport struct {
	Data []struct {
		ChatID           string `json:"chatId"`
		MessageID        string `json:"messageId"`
		PromptTokens     int    `json:"promptTokens"`
		CompletionTokens int    `json:"completionTokens"`
		TotalTokens      int    `json:"totalTokens"`
		Model            string `json:"model"`
	} `json:"data"`
}

// GetUsage fetches the usage report of one message.
func (c *Client) GetUsage(ctx context.Context, chatID, messageID string) (*Usage, error) {
	q := url.Values{}
	q.Set("chatId", chatID)
	if messageID != "" {
		q.Set("messageId", messageID)
	}
	raw, err := c.do(ctx, http.MethodGet, "/reports/usage?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var rep usageReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("v0 api: decode usage report: %w", err)
	}
	for _, d := range rep.Data {
		if messageID == "" || d.MessageID == messageID {
			return &Usage{PromptTokens: d.PromptTokens, CompletionTokens: d.CompletionTokens, TotalTokens: d.TotalTokens, Model: d.Model}, nil
		}
	}
	return nil, ErrNoUsage
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("v0 api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("v0 api: read body: %w", err)
	}
	logctx.FromCtx(ctx, c.log).Debugw("v0 api call", "method", method, "path", path, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

var Module = fx.Options(
	fx.Provide(
		New,
		func(c *Client) Generator { return c },
	),
)
