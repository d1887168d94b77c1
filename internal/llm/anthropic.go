package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jmylchreest/summarize/internal/models"
)

const anthropicAPIVersion = "2023-06-01"

// anthropicClient speaks the Anthropic Messages API. It also serves
// anthropic-compatible endpoints that reuse the same wire shape at a custom
// base URL.
type anthropicClient struct {
	provider models.Provider
	apiKey   string
	baseURL  string
	httpc    *http.Client
}

func newAnthropicClient(provider models.Provider, apiKey, baseURL string, httpc *http.Client) *anthropicClient {
	return &anthropicClient{
		provider: provider,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpc:    httpc,
	}
}

func (c *anthropicClient) Provider() models.Provider { return c.provider }

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicUsage struct {
	InputTokens  *int64 `json:"input_tokens"`
	OutputTokens *int64 `json:"output_tokens"`
}

// Anthropic defaults max_tokens when the caller leaves it unset; the API
// requires the field.
const anthropicDefaultMaxTokens = 8192

func (c *anthropicClient) buildRequest(req Request, stream bool) anthropicRequest {
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	return anthropicRequest{
		Model:     req.Model,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens: maxTokens,
		Stream:    stream,
	}
}

func (c *anthropicClient) newRequest(ctx context.Context, payload anthropicRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	return req, nil
}

func (c *anthropicClient) do(req *http.Request, model string) (*http.Response, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, rewriteTransportError(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, rewriteAPIError(&apiError{
			Provider: c.provider,
			Model:    model,
			Status:   resp.StatusCode,
			Message:  extractAnthropicError(raw),
		})
	}
	return resp, nil
}

func extractAnthropicError(raw []byte) string {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Type + ": " + envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

// Generate implements Client.
func (c *anthropicClient) Generate(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	resp, err := c.do(httpReq, req.Model)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage *anthropicUsage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &Response{Text: sb.String(), Usage: anthropicTokenUsage(out.Usage)}, nil
}

// Stream implements Client. Anthropic reports input tokens on message_start
// and output tokens on the final message_delta.
func (c *anthropicClient) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	httpReq, err := c.newRequest(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	resp, err := c.do(httpReq, req.Model)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var merged string
	usage := models.TokenUsage{}

	err = scanSSE(resp.Body, func(event, data string) error {
		switch event {
		case "message_start":
			var frame struct {
				Message struct {
					Usage *anthropicUsage `json:"usage"`
				} `json:"message"`
			}
			if json.Unmarshal([]byte(data), &frame) == nil && frame.Message.Usage != nil {
				usage.Prompt = frame.Message.Usage.InputTokens
			}
		case "content_block_delta":
			var frame struct {
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			if json.Unmarshal([]byte(data), &frame) == nil && frame.Delta.Type == "text_delta" && frame.Delta.Text != "" {
				merged = MergeStreamingChunk(merged, frame.Delta.Text)
				if onDelta != nil {
					onDelta(frame.Delta.Text)
				}
			}
		case "message_delta":
			var frame struct {
				Usage *anthropicUsage `json:"usage"`
			}
			if json.Unmarshal([]byte(data), &frame) == nil && frame.Usage != nil {
				usage.Completion = frame.Usage.OutputTokens
			}
		case "error":
			var frame struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if json.Unmarshal([]byte(data), &frame) == nil && frame.Error.Message != "" {
				return rewriteAPIError(&apiError{
					Provider: c.provider,
					Model:    req.Model,
					Status:   http.StatusBadGateway,
					Message:  frame.Error.Type + ": " + frame.Error.Message,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, rewriteTransportError(err)
	}

	if usage.Prompt != nil && usage.Completion != nil {
		usage.Total = models.Int64Ptr(*usage.Prompt + *usage.Completion)
	}
	return &Response{Text: merged, Usage: usage}, nil
}

func anthropicTokenUsage(u *anthropicUsage) models.TokenUsage {
	if u == nil {
		return models.TokenUsage{}
	}
	out := models.TokenUsage{Prompt: u.InputTokens, Completion: u.OutputTokens}
	if u.InputTokens != nil && u.OutputTokens != nil {
		out.Total = models.Int64Ptr(*u.InputTokens + *u.OutputTokens)
	}
	return out
}
