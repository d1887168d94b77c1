package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmylchreest/summarize/internal/models"
)

// openAIClient speaks the OpenAI-compatible wire protocol. It serves the
// openai, google, xai, zai, and openrouter providers, which all expose either
// the responses shape or the chat-completions shape at different base URLs.
type openAIClient struct {
	provider models.Provider
	apiKey   string
	baseURL  string
	// chatCompletions selects the chat-completions shape instead of the
	// responses shape. Forced on for any custom base URL and for every
	// non-openai provider.
	chatCompletions bool
	httpc           *http.Client
}

func newOpenAIClient(provider models.Provider, apiKey, baseURL string, chatCompletions bool, httpc *http.Client) *openAIClient {
	return &openAIClient{
		provider:        provider,
		apiKey:          apiKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		chatCompletions: chatCompletions,
		httpc:           httpc,
	}
}

func (c *openAIClient) Provider() models.Provider { return c.provider }

// isOpenRouterHost reports whether the base URL points at openrouter.ai,
// which expects attribution headers on every request.
func (c *openAIClient) isOpenRouterHost() bool {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "openrouter.ai" || strings.HasSuffix(host, ".openrouter.ai")
}

func (c *openAIClient) newRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.isOpenRouterHost() {
		req.Header.Set("HTTP-Referer", "https://github.com/jmylchreest/summarize")
		req.Header.Set("X-Title", "summarize")
	}
	return req, nil
}

func (c *openAIClient) do(req *http.Request, model string) (*http.Response, error) {
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
			Message:  extractErrorMessage(raw),
		})
	}
	return resp, nil
}

// extractErrorMessage pulls the human-readable message from the common
// {"error": {"message": ...}} envelope, falling back to the raw body.
func extractErrorMessage(raw []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		if envelope.Error.Type != "" {
			return envelope.Error.Type + ": " + envelope.Error.Message
		}
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

// --- chat-completions shape ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatUsage struct {
	PromptTokens     *int64 `json:"prompt_tokens"`
	CompletionTokens *int64 `json:"completion_tokens"`
	TotalTokens      *int64 `json:"total_tokens"`
}

func (u *chatUsage) toTokenUsage() models.TokenUsage {
	if u == nil {
		return models.TokenUsage{}
	}
	return models.TokenUsage{Prompt: u.PromptTokens, Completion: u.CompletionTokens, Total: u.TotalTokens}
}

func (c *openAIClient) buildChatRequest(req Request, stream bool) chatRequest {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	out := chatRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxOutputTokens,
		Stream:    stream,
	}
	if req.Temperature != 0 {
		out.Temperature = &req.Temperature
	}
	if stream {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return out
}

func (c *openAIClient) generateChat(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, "/chat/completions", c.buildChatRequest(req, false))
	if err != nil {
		return nil, err
	}
	resp, err := c.do(httpReq, req.Model)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage *chatUsage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", c.provider, err)
	}
	var text string
	if len(out.Choices) > 0 {
		text = out.Choices[0].Message.Content
	}
	return &Response{Text: text, Usage: out.Usage.toTokenUsage()}, nil
}

func (c *openAIClient) streamChat(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	httpReq, err := c.newRequest(ctx, "/chat/completions", c.buildChatRequest(req, true))
	if err != nil {
		return nil, err
	}
	resp, err := c.do(httpReq, req.Model)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var merged string
	var usage models.TokenUsage

	err = scanSSE(resp.Body, func(_, data string) error {
		if data == "[DONE]" {
			return nil
		}
		var frame struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Usage *chatUsage `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			return nil // tolerate unparsable keep-alive frames
		}
		if frame.Usage != nil {
			usage = frame.Usage.toTokenUsage()
		}
		if len(frame.Choices) > 0 && frame.Choices[0].Delta.Content != "" {
			delta := frame.Choices[0].Delta.Content
			merged = MergeStreamingChunk(merged, delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		return nil
	})
	if err != nil {
		return nil, rewriteTransportError(err)
	}
	return &Response{Text: merged, Usage: usage}, nil
}

// --- responses shape ---

type responsesRequest struct {
	Model           string   `json:"model"`
	Instructions    string   `json:"instructions,omitempty"`
	Input           string   `json:"input"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	Stream          bool     `json:"stream,omitempty"`
}

type responsesUsage struct {
	InputTokens  *int64 `json:"input_tokens"`
	OutputTokens *int64 `json:"output_tokens"`
	TotalTokens  *int64 `json:"total_tokens"`
}

func (u *responsesUsage) toTokenUsage() models.TokenUsage {
	if u == nil {
		return models.TokenUsage{}
	}
	return models.TokenUsage{Prompt: u.InputTokens, Completion: u.OutputTokens, Total: u.TotalTokens}
}

func (c *openAIClient) buildResponsesRequest(req Request, stream bool) responsesRequest {
	out := responsesRequest{
		Model:           req.Model,
		Instructions:    req.System,
		Input:           req.Prompt,
		MaxOutputTokens: req.MaxOutputTokens,
		Stream:          stream,
	}
	if req.Temperature != 0 {
		out.Temperature = &req.Temperature
	}
	return out
}

func (c *openAIClient) generateResponses(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, "/responses", c.buildResponsesRequest(req, false))
	if err != nil {
		return nil, err
	}
	resp, err := c.do(httpReq, req.Model)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Output []struct {
			Type    string `json:"type"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
		Usage *responsesUsage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", c.provider, err)
	}

	var sb strings.Builder
	for _, item := range out.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				sb.WriteString(part.Text)
			}
		}
	}
	return &Response{Text: sb.String(), Usage: out.Usage.toTokenUsage()}, nil
}

func (c *openAIClient) streamResponses(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	httpReq, err := c.newRequest(ctx, "/responses", c.buildResponsesRequest(req, true))
	if err != nil {
		return nil, err
	}
	resp, err := c.do(httpReq, req.Model)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var merged string
	var usage models.TokenUsage

	err = scanSSE(resp.Body, func(_, data string) error {
		var frame struct {
			Type     string `json:"type"`
			Delta    string `json:"delta"`
			Response struct {
				Usage *responsesUsage `json:"usage"`
			} `json:"response"`
		}
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			return nil
		}
		switch frame.Type {
		case "response.output_text.delta":
			if frame.Delta != "" {
				merged = MergeStreamingChunk(merged, frame.Delta)
				if onDelta != nil {
					onDelta(frame.Delta)
				}
			}
		case "response.completed":
			usage = frame.Response.Usage.toTokenUsage()
		}
		return nil
	})
	if err != nil {
		return nil, rewriteTransportError(err)
	}
	return &Response{Text: merged, Usage: usage}, nil
}

// Generate implements Client.
func (c *openAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if c.chatCompletions {
		return c.generateChat(ctx, req)
	}
	return c.generateResponses(ctx, req)
}

// Stream implements Client.
func (c *openAIClient) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	if c.chatCompletions {
		return c.streamChat(ctx, req, onDelta)
	}
	return c.streamResponses(ctx, req, onDelta)
}

// scanSSE reads server-sent-event frames from r, invoking fn with each
// frame's event name and data payload. Multi-line data fields are joined
// with newlines per the SSE framing rules.
func scanSSE(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var event string
	var data []string
	flush := func() error {
		if len(data) == 0 {
			event = ""
			return nil
		}
		err := fn(event, strings.Join(data, "\n"))
		event = ""
		data = data[:0]
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
