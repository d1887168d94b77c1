package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/models"
)

func envLookup(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestBaseURLPrecedence(t *testing.T) {
	r := NewRegistry(RegistryOptions{
		Config:    &config.Config{OpenAI: config.OpenAIConfig{BaseURL: "https://cfg.example/v1"}},
		Overrides: BaseURLOverrides{OpenAI: "https://flag.example/v1"},
		Getenv:    envLookup(map[string]string{"OPENAI_BASE_URL": "https://env.example/v1"}),
	})

	url, custom := r.baseURL(models.ProviderOpenAI)
	assert.Equal(t, "https://flag.example/v1", url)
	assert.True(t, custom)

	// Without the flag, env wins over config.
	r2 := NewRegistry(RegistryOptions{
		Config: &config.Config{OpenAI: config.OpenAIConfig{BaseURL: "https://cfg.example/v1"}},
		Getenv: envLookup(map[string]string{"OPENAI_BASE_URL": "https://env.example/v1"}),
	})
	url, _ = r2.baseURL(models.ProviderOpenAI)
	assert.Equal(t, "https://env.example/v1", url)

	// Config beats the default.
	r3 := NewRegistry(RegistryOptions{
		Config: &config.Config{OpenAI: config.OpenAIConfig{BaseURL: "https://cfg.example/v1"}},
	})
	url, custom = r3.baseURL(models.ProviderOpenAI)
	assert.Equal(t, "https://cfg.example/v1", url)
	assert.True(t, custom)

	r4 := NewRegistry(RegistryOptions{})
	url, custom = r4.baseURL(models.ProviderOpenAI)
	assert.Equal(t, defaultOpenAIBaseURL, url)
	assert.False(t, custom)
}

func TestCustomBaseURLForcesChatCompletions(t *testing.T) {
	r := NewRegistry(RegistryOptions{
		Secrets: config.Secrets{OpenAI: "k"},
		Config:  &config.Config{OpenAI: config.OpenAIConfig{BaseURL: "https://gw.example/v1"}},
	})
	c, err := r.ClientFor(models.ModelID{Provider: models.ProviderOpenAI, Name: "gpt-test"})
	require.NoError(t, err)
	oc, ok := c.(*openAIClient)
	require.True(t, ok)
	assert.True(t, oc.chatCompletions)
}

func TestDefaultOpenAIUsesResponsesShape(t *testing.T) {
	r := NewRegistry(RegistryOptions{Secrets: config.Secrets{OpenAI: "k"}})
	c, err := r.ClientFor(models.ModelID{Provider: models.ProviderOpenAI, Name: "gpt-test"})
	require.NoError(t, err)
	oc := c.(*openAIClient)
	assert.False(t, oc.chatCompletions)
}

func TestMissingCredentialsIsModelAccessError(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	_, err := r.ClientFor(models.ModelID{Provider: models.ProviderAnthropic, Name: "claude-test"})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindModelAccess))
}

func TestGeminiCredentialFallbacks(t *testing.T) {
	secrets := config.SecretsFromEnv(envLookup(map[string]string{
		"GOOGLE_API_KEY": "g-key",
	}))
	r := NewRegistry(RegistryOptions{Secrets: secrets})
	assert.True(t, r.HasCredentials(models.ProviderGoogle))
}

func TestResolveCandidatesFirstMatchingRule(t *testing.T) {
	preset := config.Preset{
		Mode: "auto",
		Rules: []config.PresetRule{
			{When: []string{"youtube"}, Candidates: []string{"openrouter/a:free"}},
			{Candidates: []string{"openai/gpt-test", "anthropic/claude-test"}},
		},
	}

	ids, err := ResolveCandidates(preset, "youtube")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, models.ProviderOpenRouter, ids[0].Provider)

	ids, err = ResolveCandidates(preset, "website")
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "gpt-test", ids[0].Name)
}

func TestRunFallbackSkipsUncredentialedAndUsesNext(t *testing.T) {
	r := NewRegistry(RegistryOptions{Secrets: config.Secrets{Anthropic: "k"}})
	candidates := []models.ModelID{
		{Provider: models.ProviderOpenAI, Name: "no-key"},
		{Provider: models.ProviderAnthropic, Name: "has-key"},
	}

	resp, used, err := r.RunFallback(context.Background(), "custom", candidates,
		func(ctx context.Context, c Client, id models.ModelID) (*Response, error) {
			return &Response{Text: "output from " + id.Name}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "has-key", used.Name)
	assert.Contains(t, resp.Text, "has-key")
}

func TestRunFallbackEmptyOutputMovesOn(t *testing.T) {
	r := NewRegistry(RegistryOptions{Secrets: config.Secrets{OpenAI: "k", Anthropic: "k"}})
	candidates := []models.ModelID{
		{Provider: models.ProviderOpenAI, Name: "empty"},
		{Provider: models.ProviderAnthropic, Name: "real"},
	}

	resp, used, err := r.RunFallback(context.Background(), "custom", candidates,
		func(ctx context.Context, c Client, id models.ModelID) (*Response, error) {
			if id.Name == "empty" {
				return &Response{Text: "   \n"}, nil
			}
			return &Response{Text: "content"}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "real", used.Name)
	assert.Equal(t, "content", resp.Text)
}

func TestRunFallbackFreePresetHint(t *testing.T) {
	r := NewRegistry(RegistryOptions{Secrets: config.Secrets{OpenRouter: "k"}})
	candidates := []models.ModelID{{Provider: models.ProviderOpenRouter, Name: "dead:free"}}

	_, _, err := r.RunFallback(context.Background(), FreePresetName, candidates,
		func(ctx context.Context, c Client, id models.ModelID) (*Response, error) {
			return nil, models.Errorf(models.ErrKindModelAccess, "model gone")
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh-free")
}

func TestRunFallbackDoesNotRetryTooLarge(t *testing.T) {
	r := NewRegistry(RegistryOptions{Secrets: config.Secrets{OpenAI: "k", Anthropic: "k"}})
	candidates := []models.ModelID{
		{Provider: models.ProviderOpenAI, Name: "a"},
		{Provider: models.ProviderAnthropic, Name: "b"},
	}

	calls := 0
	_, _, err := r.RunFallback(context.Background(), "custom", candidates,
		func(ctx context.Context, c Client, id models.ModelID) (*Response, error) {
			calls++
			return nil, models.ErrInputTooLarge
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, models.IsKind(err, models.ErrKindTooLarge))
}
