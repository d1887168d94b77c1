package orchestrator

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/summarize/internal/models"
)

// Token accounting. Estimation is the usual 4-chars-per-token heuristic; it
// only has to be conservative enough for the refusal check and chunking.
const (
	// DefaultMaxInputTokens is the refusal cap: content estimated above this
	// is rejected outright, never silently truncated.
	DefaultMaxInputTokens = 200_000

	// DefaultChunkInputTokens is the per-call budget that triggers the
	// map-reduce path.
	DefaultChunkInputTokens = 24_000
)

func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// lengthTarget maps a summary length tier to a word guideline.
func lengthTarget(length models.SummaryLength) string {
	switch length {
	case models.LengthShort:
		return "around 100-150 words"
	case models.LengthLong:
		return "around 500-700 words"
	case models.LengthXL:
		return "around 1000-1400 words"
	case models.LengthXXL:
		return "around 2000-2800 words, organized into sections"
	default: // medium
		return "around 250-350 words"
	}
}

// promptInput carries everything the prompt builder needs.
type promptInput struct {
	Content       *models.ExtractedContent
	Length        models.SummaryLength
	LanguageLabel string
	CustomPrompt  string
	MaxCharacters int
}

// buildSystemPrompt produces the system message for the summary call.
func buildSystemPrompt(in promptInput) string {
	var b strings.Builder
	b.WriteString("You are a precise summarization assistant. Summarize the provided content faithfully: no invented facts, no meta commentary about the summarization task.")

	b.WriteString(" Target length: ")
	b.WriteString(lengthTarget(in.Length))
	b.WriteString(".")

	if in.MaxCharacters > 0 {
		// A numeric character budget is a hard limit, not a guideline.
		fmt.Fprintf(&b, " Hard limit: the response must not exceed %d characters.", in.MaxCharacters)
	}
	if in.LanguageLabel != "" {
		fmt.Fprintf(&b, " Write the summary in %s.", in.LanguageLabel)
	}
	if in.CustomPrompt != "" {
		b.WriteString(" Additional instructions: ")
		b.WriteString(in.CustomPrompt)
	}
	return b.String()
}

// buildSummaryPrompt produces the user message for a single-shot summary.
func buildSummaryPrompt(in promptInput) string {
	var b strings.Builder
	writeSourceHeader(&b, in.Content)
	b.WriteString("Content:\n")
	b.WriteString(in.Content.Content)
	return b.String()
}

// buildChunkNotesPrompt asks for intermediate notes over one content chunk.
func buildChunkNotesPrompt(content *models.ExtractedContent, chunk string, index, total int) string {
	var b strings.Builder
	writeSourceHeader(&b, content)
	fmt.Fprintf(&b, "This is part %d of %d. Produce dense factual notes covering every substantive point in this part. Keep names, numbers, and conclusions; drop filler.\n\n", index, total)
	b.WriteString(chunk)
	return b.String()
}

// buildMergePrompt produces the final map-reduce message from chunk notes.
func buildMergePrompt(in promptInput, notes []string) string {
	var b strings.Builder
	writeSourceHeader(&b, in.Content)
	b.WriteString("The content was processed in parts; the notes for each part follow. Merge them into a single coherent summary of the whole.\n\n")
	for i, n := range notes {
		fmt.Fprintf(&b, "--- Notes for part %d ---\n%s\n\n", i+1, n)
	}
	return b.String()
}

func writeSourceHeader(b *strings.Builder, content *models.ExtractedContent) {
	if content.Title != "" {
		fmt.Fprintf(b, "Title: %s\n", content.Title)
	}
	if content.SiteName != "" {
		fmt.Fprintf(b, "Site: %s\n", content.SiteName)
	}
	if content.URL != "" {
		fmt.Fprintf(b, "URL: %s\n", content.URL)
	}
	b.WriteString("\n")
}

// splitChunks divides content into pieces under the token budget, breaking on
// paragraph boundaries where possible.
func splitChunks(content string, chunkTokens int) []string {
	maxChars := chunkTokens * 4
	if len(content) <= maxChars {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder
	for _, para := range strings.Split(content, "\n\n") {
		// A single oversized paragraph is split hard.
		for len(para) > maxChars {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, para[:maxChars])
			para = para[maxChars:]
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
