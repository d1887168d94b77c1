package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/models"
)

func resetRunFlags(t *testing.T) {
	t.Helper()
	prev := runFlags
	t.Cleanup(func() { runFlags = prev })
	runFlags = runFlagSet{
		Stream:    "auto",
		Render:    "plain",
		Metrics:   "off",
		Firecrawl: "auto",
		Markdown:  "off",
	}
}

func TestValidateRunFlags(t *testing.T) {
	resetRunFlags(t)
	require.NoError(t, validateRunFlags())

	runFlags.Length = "medium"
	require.NoError(t, validateRunFlags())

	runFlags.Length = "gigantic"
	err := validateRunFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--length")

	runFlags.Length = ""
	runFlags.Stream = "sometimes"
	err = validateRunFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--stream")

	runFlags.Stream = "off"
	runFlags.Metrics = "verbose"
	err = validateRunFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--metrics")

	runFlags.Metrics = "detailed"
	runFlags.Firecrawl = "maybe"
	err = validateRunFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--firecrawl")
}

func TestStreamEnabled(t *testing.T) {
	resetRunFlags(t)

	// Tests run without a TTY on stdout, so auto resolves to off.
	runFlags.Stream = "auto"
	assert.False(t, streamEnabled())

	runFlags.Stream = "on"
	assert.True(t, streamEnabled())

	runFlags.JSON = true
	assert.False(t, streamEnabled())

	runFlags.JSON = false
	runFlags.Stream = "off"
	assert.False(t, streamEnabled())
}

func TestMarkdownCandidates(t *testing.T) {
	cfg := &config.Config{
		Model: "quick",
		Models: map[string]config.Preset{
			"quick": {
				Mode: "auto",
				Rules: []config.PresetRule{
					{Candidates: []string{"openai/gpt-4.1-mini", "anthropic/claude-sonnet-4-5"}},
				},
			},
		},
	}

	name, candidates, err := markdownCandidates(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "quick", name)
	require.Len(t, candidates, 2)
	assert.Equal(t, models.ModelID{Provider: "openai", Name: "gpt-4.1-mini"}, candidates[0])

	name, candidates, err = markdownCandidates(cfg, "openai/gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4.1", name)
	require.Len(t, candidates, 1)
	assert.Equal(t, "gpt-4.1", candidates[0].Name)

	_, _, err = markdownCandidates(cfg, "nonsense")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindConfig))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "2.0 KiB", formatBytes(2048))
	assert.Equal(t, "1.5 MiB", formatBytes(3<<19))
	assert.Equal(t, "1.0 GiB", formatBytes(1<<30))
}
