package orchestrator

import (
	"context"

	"github.com/jmylchreest/summarize/internal/costbook"
	"github.com/jmylchreest/summarize/internal/extractor"
	"github.com/jmylchreest/summarize/internal/llm"
	"github.com/jmylchreest/summarize/internal/models"
)

// markdownSystemPrompt drives the LLM HTML-to-Markdown conversion used by the
// extractor's `--markdown llm` mode.
const markdownSystemPrompt = "Convert the provided HTML to clean Markdown. Preserve headings, lists, links, and emphasis. Drop navigation, ads, cookie banners, and boilerplate. Output only the Markdown, nothing else."

// llmMarkdown converts HTML to Markdown through the model registry. Calls
// book their usage under the markdown purpose.
type llmMarkdown struct {
	registry   *llm.Registry
	candidates []models.ModelID
	preset     string
	book       *costbook.Book
}

func newLLMMarkdown(registry *llm.Registry, preset string, candidates []models.ModelID, book *costbook.Book) *llmMarkdown {
	return &llmMarkdown{registry: registry, candidates: candidates, preset: preset, book: book}
}

// NewMarkdownConverter builds the LLM-backed HTML-to-Markdown converter the
// extractor uses in llm markdown mode. Conversions run outside any single
// run, so their usage is not booked.
func NewMarkdownConverter(registry *llm.Registry, preset string, candidates []models.ModelID) extractor.MarkdownConverter {
	return newLLMMarkdown(registry, preset, candidates, nil)
}

func (m *llmMarkdown) ToMarkdown(ctx context.Context, htmlBody, title string) (string, error) {
	prompt := htmlBody
	if title != "" {
		prompt = "Page title: " + title + "\n\n" + htmlBody
	}

	resp, id, err := m.registry.RunFallback(ctx, m.preset, m.candidates,
		func(ctx context.Context, client llm.Client, id models.ModelID) (*llm.Response, error) {
			return client.Generate(ctx, llm.Request{
				Model:  id.Name,
				System: markdownSystemPrompt,
				Prompt: prompt,
			})
		})
	if err != nil {
		return "", err
	}

	if m.book != nil {
		m.book.Record(models.LlmCall{
			Provider: id.Provider,
			Model:    id.Name,
			Usage:    resp.Usage,
			Purpose:  models.PurposeMarkdown,
			PresetID: presetLabel(m.preset, id),
		})
	}
	return resp.Text, nil
}

// presetLabel is the display label for the metrics report: a user-supplied
// full provider/... id is echoed as-is, otherwise the canonical id.
func presetLabel(requested string, id models.ModelID) string {
	if parsed, err := models.ParseModelID(requested); err == nil && parsed == id {
		return requested
	}
	return id.String()
}
