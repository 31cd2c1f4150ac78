package v0

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendMessage_NewChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chats", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "build me a page", body["message"])
		require.Equal(t, "sync", body["responseMode"])
		_, _ = w.Write([]byte(`{"id":"chat_1","webUrl":"https://v0.dev/chat/chat_1","messages":[{"id":"m_user","role":"user"},{"id":"m_bot","role":"assistant"}],"usage":{"promptTokens":3,"completionTokens":5,"totalTokens":8}}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL, "key", srv.Client(), zap.NewNop().Sugar())
	res, err := c.SendMessage(context.Background(), &SendMessageRequest{Message: "build me a page"})
	require.NoError(t, err)
	require.Equal(t, "chat_1", res.ChatID)
	require.Equal(t, "m_bot", res.MessageID)
	require.NotNil(t, res.Usage)
	require.Equal(t, 8, res.Usage.TotalTokens)
}

func TestSendMessage_ExistingChatAndError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chats/chat_9/messages", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream down`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL+"/", "key", srv.Client(), zap.NewNop().Sugar())
	_, err := c.SendMessage(context.Background(), &SendMessageRequest{ChatID: "chat_9", Message: "hi"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestGetUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reports/usage", r.URL.Path)
		require.Equal(t, "chat_1", r.URL.Query().Get("chatId"))
		_, _ = w.Write([]byte(`{"data":[{"chatId":"chat_1","messageId":"m_other","totalTokens":1},{"chatId":"chat_1","messageId":"m_bot","promptTokens":2,"completionTokens":4,"totalTokens":6,"model":"v0-1.5-md"}]}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL, "key", srv.Client(), zap.NewNop().Sugar())
	u, err := c.GetUsage(context.Background(), "chat_1", "m_bot")
	require.NoError(t, err)
	require.Equal(t, 6, u.TotalTokens)
	require.Equal(t, "v0-1.5-md", u.Model)

	_, err = c.GetUsage(context.Background(), "chat_1", "m_missing")
	require.ErrorIs(t, err, ErrNoUsage)
}
