package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/summarize/internal/models"
)

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		var body anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Positive(t, body.MaxTokens)

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "result text"}},
			"usage":   map[string]any{"input_tokens": 9, "output_tokens": 2},
		})
	}))
	defer srv.Close()

	c := newAnthropicClient(models.ProviderAnthropic, "test-key", srv.URL, srv.Client())
	resp, err := c.Generate(context.Background(), Request{Model: "claude-test", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "result text", resp.Text)
	require.NotNil(t, resp.Usage.Total)
	assert.Equal(t, int64(11), *resp.Usage.Total)
}

func TestAnthropicStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(
			"event: message_start\n" +
				"data: {\"message\":{\"usage\":{\"input_tokens\":5}}}\n\n" +
				"event: content_block_delta\n" +
				"data: {\"delta\":{\"type\":\"text_delta\",\"text\":\"par\"}}\n\n" +
				"event: content_block_delta\n" +
				"data: {\"delta\":{\"type\":\"text_delta\",\"text\":\"tial\"}}\n\n" +
				"event: message_delta\n" +
				"data: {\"usage\":{\"output_tokens\":2}}\n\n" +
				"event: message_stop\n" +
				"data: {}\n\n"))
	}))
	defer srv.Close()

	c := newAnthropicClient(models.ProviderAnthropic, "k", srv.URL, srv.Client())
	var got string
	resp, err := c.Stream(context.Background(), Request{Model: "m", Prompt: "p"}, func(d string) {
		got = MergeStreamingChunk(got, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "partial", resp.Text)
	assert.Equal(t, "partial", got)
	require.NotNil(t, resp.Usage.Total)
	assert.Equal(t, int64(7), *resp.Usage.Total)
}

func TestAnthropicStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(
			"event: error\n" +
				"data: {\"error\":{\"type\":\"overloaded_error\",\"message\":\"overloaded\"}}\n\n"))
	}))
	defer srv.Close()

	c := newAnthropicClient(models.ProviderAnthropic, "k", srv.URL, srv.Client())
	_, err := c.Stream(context.Background(), Request{Model: "m", Prompt: "p"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}
