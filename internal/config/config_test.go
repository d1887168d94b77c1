package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	// Missing config file falls back to defaults.
	cfg, err := Load(newTestViper(), filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, int64(DefaultCacheMaxMB), cfg.Cache.MaxMB)
	assert.Equal(t, DefaultCacheTTLDays, cfg.Cache.TTLDays)
	assert.Equal(t, int64(DefaultMediaMaxMB), cfg.Cache.Media.MaxMB)
	assert.Equal(t, DefaultMediaTTLDays, cfg.Cache.Media.TTLDays)
	assert.Equal(t, VerifySize, cfg.Cache.Media.Verify)
	assert.True(t, cfg.Cache.CacheEnabled())
	assert.True(t, cfg.Cache.Media.MediaEnabled())
}

func TestLoadRejectsNonObjectTopLevel(t *testing.T) {
	// null unmarshals into a map without error, leaving it nil.
	for _, content := range []string{`[1,2,3]`, `"string"`, `42`, `null`} {
		path := writeConfig(t, content)
		_, err := Load(newTestViper(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), path)
		assert.Contains(t, err.Error(), "JSON object")
	}
}

func TestLoadPresets(t *testing.T) {
	path := writeConfig(t, `{
		"model": "free",
		"language": "de",
		"models": {
			"free": {
				"mode": "auto",
				"rules": [
					{"candidates": ["openrouter/meta-llama/llama-3.3-70b-instruct:free"]}
				]
			}
		}
	}`)

	cfg, err := Load(newTestViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "free", cfg.Model)
	assert.Equal(t, "de", cfg.Language)
	require.Contains(t, cfg.Models, "free")
	require.Len(t, cfg.Models["free"].Rules, 1)
	assert.Equal(t, "openrouter/meta-llama/llama-3.3-70b-instruct:free",
		cfg.Models["free"].Rules[0].Candidates[0])
}

func TestLoadRejectsBadVerifyMode(t *testing.T) {
	path := writeConfig(t, `{"cache": {"media": {"verify": "crc32"}}}`)
	_, err := Load(newTestViper(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify")
}

func TestLoadRejectsUnknownPresetMode(t *testing.T) {
	path := writeConfig(t, `{"models": {"x": {"mode": "roundrobin"}}}`)
	_, err := Load(newTestViper(), path)
	require.Error(t, err)
}

func TestEnvOverridesConfig(t *testing.T) {
	path := writeConfig(t, `{"model": "openai/gpt-4o-mini"}`)

	t.Setenv("SUMMARIZE_MODEL", "anthropic/claude-sonnet-4-5")
	v := newTestViper()
	BindEnv(v)

	cfg, err := Load(v, path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", cfg.Model)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := &Config{
		Model: "free",
		Models: map[string]Preset{
			"free": {Mode: "auto", Rules: []PresetRule{{Candidates: []string{"openrouter/a:free"}}}},
		},
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(newTestViper(), path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Model, loaded.Model)
	assert.Equal(t, cfg.Models["free"].Rules[0].Candidates, loaded.Models["free"].Rules[0].Candidates)
}

func TestSecretsFromEnv(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY": "sk-test",
		"GOOGLE_API_KEY": "g-test",
	}
	s := SecretsFromEnv(func(k string) string { return env[k] })
	assert.Equal(t, "sk-test", s.OpenAI)
	// Gemini falls through the alternate variable names.
	assert.Equal(t, "g-test", s.Gemini)
	assert.Empty(t, s.Anthropic)
}
