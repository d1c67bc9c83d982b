package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricescout/searchservice/internal/providers/common"
)

func chatServer(t *testing.T, status int, reply string) (*httptest.Server, *chatRequest) {
	t.Helper()
	captured := &chatRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(captured)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		payload, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": reply}}},
		})
		_, _ = w.Write(payload)
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func newTestProvider(server *httptest.Server) *Provider {
	return NewProvider(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1/"})
}

func TestFetchParsesArrayReply(t *testing.T) {
	server, captured := chatServer(t, http.StatusOK, `[
  {"title": "iPhone 13 Screen", "price": 79.5, "in_stock": true, "source": "Fixez", "link": "https://fixez.com/p/1", "image": "https://fixez.com/i/1.jpg"},
  {"title": "iPhone 13 OLED", "price": "89.00", "url": "https://example.com/2"},
  "not an object"
]`)
	offers, err := newTestProvider(server).Fetch(context.Background(), "iphone 13 screen")
	require.NoError(t, err)

	assert.Equal(t, defaultModel, captured.Model)
	assert.InDelta(t, 0.2, captured.Temperature, 1e-9)
	require.Len(t, captured.Messages, 2)
	assert.Contains(t, captured.Messages[1].Content, `"iphone 13 screen"`)

	require.Len(t, offers, 2)
	assert.Equal(t, "Fixez", offers[0].Source)
	assert.Equal(t, 79.5, offers[0].Price)
	assert.Equal(t, true, offers[0].InStock)
	assert.Equal(t, "OpenAI", offers[1].Source)
	assert.Equal(t, "https://example.com/2", offers[1].Link)
}

func TestFetchToleratesProseAndWrappers(t *testing.T) {
	tests := map[string]string{
		"wrapped object": `{"products": [{"title": "PS5 fan", "price": 12}]}`,
		"prose":          "Sure! Here you go:\n```json\n[{\"title\": \"PS5 fan\", \"price\": 12}]\n```\nEnjoy.",
		"json5":          `[{title: 'PS5 fan', price: 12,},]`,
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			server, _ := chatServer(t, http.StatusOK, reply)
			offers, err := newTestProvider(server).Fetch(context.Background(), "ps5 fan")
			require.NoError(t, err)
			require.Len(t, offers, 1)
			assert.Equal(t, "PS5 fan", offers[0].Title)
		})
	}
}

func TestFetchWithoutArrayIsEmpty(t *testing.T) {
	server, _ := chatServer(t, http.StatusOK, "I could not find any products.")
	offers, err := newTestProvider(server).Fetch(context.Background(), "ps5 fan")
	require.NoError(t, err)
	assert.NotNil(t, offers)
	assert.Empty(t, offers)
}

func TestFetchReportsAPIErrors(t *testing.T) {
	server, _ := chatServer(t, http.StatusTooManyRequests, "")
	_, err := newTestProvider(server).Fetch(context.Background(), "ps5 fan")
	require.ErrorIs(t, err, common.ErrUnexpectedStatus)
	assert.True(t, strings.Contains(err.Error(), "rate limited"))
}

func TestRewrite(t *testing.T) {
	server, captured := chatServer(t, http.StatusOK, `Here: ["iphone 13 oled screen", " ", "iphone 13 display assembly"]`)
	variants, err := newTestProvider(server).Rewrite(context.Background(), "iphone 13 screen", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"iphone 13 oled screen", "iphone 13 display assembly"}, variants)
	assert.Contains(t, captured.Messages[1].Content, "at most 2")
}

func TestRewriteRejectsProse(t *testing.T) {
	server, _ := chatServer(t, http.StatusOK, "no idea")
	_, err := newTestProvider(server).Rewrite(context.Background(), "iphone 13 screen", 2)
	require.ErrorIs(t, err, ErrNoJSONArray)
}

func TestInfoDisabledWithoutKey(t *testing.T) {
	assert.False(t, NewProvider(Config{}).Info().Enabled)
	assert.True(t, NewProvider(Config{APIKey: "k"}).Info().Enabled)
}
