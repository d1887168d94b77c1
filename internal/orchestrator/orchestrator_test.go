package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/costbook"
	"github.com/jmylchreest/summarize/internal/llm"
	"github.com/jmylchreest/summarize/internal/models"
)

// fakeClient scripts generate/stream responses for testing the call flow
// without a provider.
type fakeClient struct {
	generate  func(req llm.Request) (*llm.Response, error)
	stream    func(req llm.Request, onDelta llm.DeltaFunc) (*llm.Response, error)
	generated []llm.Request
	streamed  []llm.Request
}

func (f *fakeClient) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.generated = append(f.generated, req)
	return f.generate(req)
}

func (f *fakeClient) Stream(_ context.Context, req llm.Request, onDelta llm.DeltaFunc) (*llm.Response, error) {
	f.streamed = append(f.streamed, req)
	return f.stream(req, onDelta)
}

func (f *fakeClient) Provider() models.Provider { return models.ProviderOpenAI }

func testOrchestrator() *Orchestrator {
	return New(Options{Config: &config.Config{}})
}

func testContent(text string) *models.ExtractedContent {
	return &models.ExtractedContent{
		URL:             "https://example.com/article",
		Title:           "Example Article",
		Content:         text,
		TotalCharacters: len(text),
	}
}

func TestSplitChunksShortContentSingleChunk(t *testing.T) {
	chunks := splitChunks("short content", 1000)
	assert.Equal(t, []string{"short content"}, chunks)
}

func TestSplitChunksBreaksOnParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 100)
	content := para + "\n\n" + para + "\n\n" + para

	// Budget of 150 tokens = 600 chars; each paragraph is 500 chars.
	chunks := splitChunks(content, 150)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 600)
	}
	assert.Equal(t, content, strings.Join(chunks, "\n\n"))
}

func TestSplitChunksOversizedParagraph(t *testing.T) {
	content := strings.Repeat("a", 1000)
	chunks := splitChunks(content, 100) // 400-char budget
	require.Len(t, chunks, 3)
	assert.Equal(t, content, strings.Join(chunks, ""))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 25, estimateTokens(strings.Repeat("x", 100)))
}

func TestBuildSystemPromptHardLimit(t *testing.T) {
	in := promptInput{Length: models.LengthShort, MaxCharacters: 500}
	prompt := buildSystemPrompt(in)
	assert.Contains(t, prompt, "must not exceed 500 characters")
	assert.Contains(t, prompt, "100-150 words")

	in.MaxCharacters = 0
	assert.NotContains(t, buildSystemPrompt(in), "Hard limit")
}

func TestBuildSystemPromptLanguageAndCustom(t *testing.T) {
	in := promptInput{Length: models.LengthMedium, LanguageLabel: "German", CustomPrompt: "Focus on pricing."}
	prompt := buildSystemPrompt(in)
	assert.Contains(t, prompt, "Write the summary in German.")
	assert.Contains(t, prompt, "Focus on pricing.")
}

func TestStreamCallMergesDeltas(t *testing.T) {
	o := testOrchestrator()
	book := costbook.New(models.DefaultPricing())
	id := models.ModelID{Provider: models.ProviderOpenAI, Name: "gpt-4.1-mini"}

	client := &fakeClient{
		stream: func(_ llm.Request, onDelta llm.DeltaFunc) (*llm.Response, error) {
			// Incremental deltas, then a cumulative resend of the full text.
			onDelta("Hello")
			onDelta(" world")
			onDelta("Hello world!")
			return &llm.Response{Text: "Hello world!"}, nil
		},
	}

	var emitted []string
	req := RunRequest{OnChunk: func(text string) { emitted = append(emitted, text) }}

	resp, err := o.streamCall(context.Background(), client, id, req,
		llm.Request{Model: id.Name, Prompt: "x"}, "openai/gpt-4.1-mini", book,
		models.PurposeSummary, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "Hello world!", strings.Join(emitted, ""))
	assert.Equal(t, "Hello world!", resp.Text)
}

func TestSummarizeWithModelRetriesEmptyOnce(t *testing.T) {
	o := testOrchestrator()
	book := costbook.New(models.DefaultPricing())
	id := models.ModelID{Provider: models.ProviderOpenAI, Name: "gpt-4.1-mini"}

	calls := 0
	client := &fakeClient{
		stream: func(_ llm.Request, onDelta llm.DeltaFunc) (*llm.Response, error) {
			calls++
			if calls == 1 {
				return &llm.Response{Text: "   \n"}, nil
			}
			onDelta("A real summary.")
			return &llm.Response{Text: "A real summary."}, nil
		},
	}

	in := promptInput{Content: testContent("some article text"), Length: models.LengthMedium}
	resp, err := o.summarizeWithModel(context.Background(), client, id, RunRequest{}, in,
		"system", "openai/gpt-4.1-mini", book, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "A real summary.", resp.Text)
}

func TestMapReduceChunksThenMerges(t *testing.T) {
	o := New(Options{Config: &config.Config{}, ChunkInputTokens: 150})
	book := costbook.New(models.DefaultPricing())
	id := models.ModelID{Provider: models.ProviderOpenAI, Name: "gpt-4.1-mini"}

	para := strings.Repeat("word ", 100)
	content := testContent(para + "\n\n" + para + "\n\n" + para)

	client := &fakeClient{
		generate: func(req llm.Request) (*llm.Response, error) {
			return &llm.Response{Text: "notes", Usage: models.TokenUsage{Prompt: models.Int64Ptr(10)}}, nil
		},
		stream: func(req llm.Request, onDelta llm.DeltaFunc) (*llm.Response, error) {
			assert.Contains(t, req.Prompt, "Notes for part 1")
			onDelta("merged summary")
			return &llm.Response{Text: "merged summary"}, nil
		},
	}

	in := promptInput{Content: content, Length: models.LengthMedium}
	resp, err := o.summarizeWithModel(context.Background(), client, id, RunRequest{}, in,
		"system", "openai/gpt-4.1-mini", book, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "merged summary", resp.Text)
	assert.Greater(t, len(client.generated), 1, "chunk notes use generate")
	assert.Len(t, client.streamed, 1, "final merge streams")
}

func TestResolveCandidatesDirectID(t *testing.T) {
	o := testOrchestrator()
	name, candidates, err := o.resolveCandidates(
		RunRequest{Model: "anthropic/claude-sonnet-4-5"}, testContent("x"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", name)
	require.Len(t, candidates, 1)
	assert.Equal(t, models.ProviderAnthropic, candidates[0].Provider)
}

func TestResolveCandidatesPreset(t *testing.T) {
	o := New(Options{Config: &config.Config{
		Models: map[string]config.Preset{
			"free": {Mode: "auto", Rules: []config.PresetRule{
				{Candidates: []string{"openrouter/meta-llama/llama-3.3-70b-instruct:free"}},
			}},
		},
	}})

	name, candidates, err := o.resolveCandidates(RunRequest{Model: "free"}, testContent("x"))
	require.NoError(t, err)
	assert.Equal(t, "free", name)
	require.Len(t, candidates, 1)
	assert.Equal(t, models.ProviderOpenRouter, candidates[0].Provider)
}

func TestResolveCandidatesUnknownPreset(t *testing.T) {
	o := testOrchestrator()
	_, _, err := o.resolveCandidates(RunRequest{Model: "nonexistent"}, testContent("x"))
	require.Error(t, err)
	assert.Equal(t, models.ErrKindConfig, models.KindOf(err))
}

func TestPresetLabelEchoesDirectID(t *testing.T) {
	id := models.ModelID{Provider: models.ProviderOpenRouter, Name: "meta-llama/llama-3.3-70b-instruct:free"}
	assert.Equal(t, "openrouter/meta-llama/llama-3.3-70b-instruct:free",
		presetLabel("openrouter/meta-llama/llama-3.3-70b-instruct:free", id))
	assert.Equal(t, id.String(), presetLabel("free", id))
}
