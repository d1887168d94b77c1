package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultFirecrawlBaseURL = "https://api.firecrawl.dev"

// FirecrawlMode controls when the Firecrawl scrape service is used.
type FirecrawlMode string

// Firecrawl modes.
const (
	FirecrawlOff    FirecrawlMode = "off"
	FirecrawlAuto   FirecrawlMode = "auto"
	FirecrawlAlways FirecrawlMode = "always"
)

// ValidFirecrawlMode reports whether s is a supported mode.
func ValidFirecrawlMode(s string) bool {
	switch FirecrawlMode(s) {
	case FirecrawlOff, FirecrawlAuto, FirecrawlAlways:
		return true
	}
	return false
}

// firecrawlClient calls the Firecrawl scrape API for Markdown extraction.
type firecrawlClient struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

func newFirecrawlClient(apiKey, baseURL string, httpc *http.Client) *firecrawlClient {
	if baseURL == "" {
		baseURL = defaultFirecrawlBaseURL
	}
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &firecrawlClient{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

type firecrawlResult struct {
	Markdown    string
	Title       string
	Description string
	SiteName    string
	FinalURL    string
}

// Scrape fetches a page as Markdown.
func (c *firecrawlClient) Scrape(ctx context.Context, pageURL string) (*firecrawlResult, error) {
	payload, err := json.Marshal(map[string]any{
		"url":     pageURL,
		"formats": []string{"markdown"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		return nil, fmt.Errorf("firecrawl: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Success bool `json:"success"`
		Data    struct {
			Markdown string `json:"markdown"`
			Metadata struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				SiteName    string `json:"ogSiteName"`
				SourceURL   string `json:"sourceURL"`
			} `json:"metadata"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("firecrawl: decoding response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("firecrawl: %s", out.Error)
	}

	return &firecrawlResult{
		Markdown:    out.Data.Markdown,
		Title:       out.Data.Metadata.Title,
		Description: out.Data.Metadata.Description,
		SiteName:    out.Data.Metadata.SiteName,
		FinalURL:    out.Data.Metadata.SourceURL,
	}, nil
}
