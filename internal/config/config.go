// Package config provides configuration management for summarize using Viper.
// It supports configuration from the JSON config file, environment variables,
// and defaults. Precedence is CLI flag > environment > config file > default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 8765
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	DefaultCacheMaxMB      = 512
	DefaultCacheTTLDays    = 30
	DefaultMediaMaxMB      = 2048
	DefaultMediaTTLDays    = 7
	DefaultSlidesWorkers   = 8
	MaxSlidesWorkers       = 16
	DefaultSlidesSamples   = 8
	DefaultRequestTimeout  = 120 * time.Second
	DefaultSlidesMaxSlides = 20
	DefaultMinSlideSeconds = 5.0
)

// VerifyMode controls media cache payload verification on read.
type VerifyMode string

// Verification modes for cached media payloads.
const (
	VerifySize VerifyMode = "size"
	VerifyHash VerifyMode = "hash"
	VerifyNone VerifyMode = "none"
)

// Valid reports whether the mode is one of the supported values.
func (m VerifyMode) Valid() bool {
	switch m {
	case VerifySize, VerifyHash, VerifyNone:
		return true
	}
	return false
}

// Config holds all configuration for the application.
type Config struct {
	Model     string            `mapstructure:"model" json:"model,omitempty"`
	Models    map[string]Preset `mapstructure:"models" json:"models,omitempty"`
	Language  string            `mapstructure:"language" json:"language,omitempty"`
	OpenAI    OpenAIConfig      `mapstructure:"openai" json:"openai,omitempty"`
	Anthropic AnthropicConfig   `mapstructure:"anthropic" json:"anthropic,omitempty"`
	Cache     CacheConfig       `mapstructure:"cache" json:"cache,omitempty"`
	Slides    SlidesConfig      `mapstructure:"slides" json:"slides,omitempty"`
	Server    ServerConfig      `mapstructure:"server" json:"server,omitempty"`
	Logging   LoggingConfig     `mapstructure:"logging" json:"logging,omitempty"`
}

// Preset is a named model-selection strategy: an ordered list of candidate
// model IDs, optionally gated by input kind.
type Preset struct {
	Mode  string       `mapstructure:"mode" json:"mode"` // "auto"
	Rules []PresetRule `mapstructure:"rules" json:"rules"`
}

// PresetRule matches input kinds to candidate models. An empty When matches
// every input.
type PresetRule struct {
	When       []string `mapstructure:"when" json:"when,omitempty"` // website, asset, youtube, media, file
	Candidates []string `mapstructure:"candidates" json:"candidates"`
}

// OpenAIConfig holds OpenAI-compatible provider configuration.
type OpenAIConfig struct {
	BaseURL            string `mapstructure:"baseUrl" json:"baseUrl,omitempty"`
	UseChatCompletions bool   `mapstructure:"useChatCompletions" json:"useChatCompletions,omitempty"`
}

// AnthropicConfig holds Anthropic provider configuration.
type AnthropicConfig struct {
	BaseURL string `mapstructure:"baseUrl" json:"baseUrl,omitempty"`
}

// CacheConfig holds metadata cache configuration.
type CacheConfig struct {
	Enabled *bool            `mapstructure:"enabled" json:"enabled,omitempty"`
	MaxMB   int64            `mapstructure:"maxMb" json:"maxMb,omitempty"`
	TTLDays int              `mapstructure:"ttlDays" json:"ttlDays,omitempty"`
	Path    string           `mapstructure:"path" json:"path,omitempty"`
	Media   MediaCacheConfig `mapstructure:"media" json:"media,omitempty"`
}

// MediaCacheConfig holds media (download) cache configuration.
type MediaCacheConfig struct {
	Enabled *bool      `mapstructure:"enabled" json:"enabled,omitempty"`
	MaxMB   int64      `mapstructure:"maxMb" json:"maxMb,omitempty"`
	TTLDays int        `mapstructure:"ttlDays" json:"ttlDays,omitempty"`
	Path    string     `mapstructure:"path" json:"path,omitempty"`
	Verify  VerifyMode `mapstructure:"verify" json:"verify,omitempty"`
}

// SlidesConfig holds slide-extraction configuration.
type SlidesConfig struct {
	Workers       int     `mapstructure:"workers" json:"workers,omitempty"`
	Samples       int     `mapstructure:"samples" json:"samples,omitempty"`
	OutputDir     string  `mapstructure:"outputDir" json:"outputDir,omitempty"`
	YtdlpFormat   string  `mapstructure:"ytdlpFormat" json:"ytdlpFormat,omitempty"`
	ExtractStream *bool   `mapstructure:"extractStream" json:"extractStream,omitempty"`
	MaxSlides     int     `mapstructure:"maxSlides" json:"maxSlides,omitempty"`
	MinDuration   float64 `mapstructure:"minDuration" json:"minDuration,omitempty"`
}

// ServerConfig holds daemon HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host" json:"host,omitempty"`
	Port            int           `mapstructure:"port" json:"port,omitempty"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"-"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"-"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"-"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" json:"level,omitempty"`   // debug, info, warn, error
	Format     string `mapstructure:"format" json:"format,omitempty"` // json, text
	AddSource  bool   `mapstructure:"add_source" json:"-"`
	TimeFormat string `mapstructure:"time_format" json:"-"`
}

// CacheEnabled reports whether the metadata cache is enabled (default true).
func (c CacheConfig) CacheEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MediaEnabled reports whether the media cache is enabled (default true).
func (c MediaCacheConfig) MediaEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// BaseDir returns the summarize state directory (~/.summarize).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".summarize"), nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.json"), nil
}

// CachePath returns the metadata cache database path, honouring the
// configured override.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return c.Cache.Path, nil
	}
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "cache.sqlite"), nil
}

// MediaCachePath returns the media cache directory, honouring the configured
// override.
func (c *Config) MediaCachePath() (string, error) {
	if c.Cache.Media.Path != "" {
		return c.Cache.Media.Path, nil
	}
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "cache", "media"), nil
}

// SlidesDir returns the slide output root, honouring the configured override.
func (c *Config) SlidesDir() (string, error) {
	if c.Slides.OutputDir != "" {
		return c.Slides.OutputDir, nil
	}
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "cache", "slides"), nil
}

// DaemonStatePath returns the daemon state file location (~/.summarize/daemon.json).
func DaemonStatePath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "daemon.json"), nil
}

// SetDefaults sets default configuration values on the given Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("cache.maxMb", DefaultCacheMaxMB)
	v.SetDefault("cache.ttlDays", DefaultCacheTTLDays)
	v.SetDefault("cache.media.maxMb", DefaultMediaMaxMB)
	v.SetDefault("cache.media.ttlDays", DefaultMediaTTLDays)
	v.SetDefault("cache.media.verify", string(VerifySize))

	v.SetDefault("slides.workers", DefaultSlidesWorkers)
	v.SetDefault("slides.samples", DefaultSlidesSamples)
	v.SetDefault("slides.maxSlides", DefaultSlidesMaxSlides)
	v.SetDefault("slides.minDuration", DefaultMinSlideSeconds)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// BindEnv wires the dedicated environment variables the CLI documents.
// Viper's automatic env handling covers the SUMMARIZE_ prefixed keys; the
// remaining variables are read directly by the components that own them
// (API keys by the model registry, tool paths by the binary locator).
func BindEnv(v *viper.Viper) {
	_ = v.BindEnv("model", "SUMMARIZE_MODEL")
	_ = v.BindEnv("openai.baseUrl", "OPENAI_BASE_URL")
	_ = v.BindEnv("anthropic.baseUrl", "ANTHROPIC_BASE_URL")
	_ = v.BindEnv("openai.useChatCompletions", "OPENAI_USE_CHAT_COMPLETIONS")
	_ = v.BindEnv("slides.workers", "SUMMARIZE_SLIDES_WORKERS")
	_ = v.BindEnv("slides.samples", "SUMMARIZE_SLIDES_SAMPLES")
	_ = v.BindEnv("slides.ytdlpFormat", "SUMMARIZE_SLIDES_YTDLP_FORMAT")
	_ = v.BindEnv("slides.extractStream", "SUMMARIZE_SLIDES_EXTRACT_STREAM")
}

// Load reads the config file at path (if it exists), applies it on top of
// the defaults already present in v, and unmarshals the result.
//
// The config file must be a JSON object at the top level; anything else is
// rejected with an error naming the file.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file is fine; defaults and env apply.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		var top map[string]json.RawMessage
		if err := json.Unmarshal(data, &top); err != nil {
			return nil, fmt.Errorf("config %s: top-level value must be a JSON object: %w", path, err)
		}
		// json.Unmarshal accepts the literal null into a map without error.
		if top == nil {
			return nil, fmt.Errorf("config %s: top-level value must be a JSON object", path)
		}
		v.SetConfigType("json")
		if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Cache.MaxMB < 0 {
		return fmt.Errorf("cache.maxMb must not be negative")
	}
	if c.Cache.Media.MaxMB < 0 {
		return fmt.Errorf("cache.media.maxMb must not be negative")
	}
	if c.Cache.Media.Verify != "" && !c.Cache.Media.Verify.Valid() {
		return fmt.Errorf("cache.media.verify must be one of size, hash, none (got %q)", c.Cache.Media.Verify)
	}
	if c.Slides.Workers < 0 {
		return fmt.Errorf("slides.workers must not be negative")
	}
	for name, preset := range c.Models {
		if preset.Mode != "" && preset.Mode != "auto" {
			return fmt.Errorf("models.%s: unsupported mode %q", name, preset.Mode)
		}
	}
	return nil
}

// Save writes the config back to path atomically (temp file then rename).
// The refresh-free ranker uses this to persist its candidate selection.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

// Secrets holds API credentials read from the environment. They are never
// written to the config file and are redacted from logs.
type Secrets struct {
	OpenAI     string
	Anthropic  string
	XAI        string
	Gemini     string
	OpenRouter string
	Firecrawl  string
	Apify      string
}

// SecretsFromEnv reads API credentials using the provided lookup, normally
// os.Getenv. Threading the lookup keeps tests hermetic.
func SecretsFromEnv(getenv func(string) string) Secrets {
	gemini := getenv("GEMINI_API_KEY")
	if gemini == "" {
		gemini = getenv("GOOGLE_GENERATIVE_AI_API_KEY")
	}
	if gemini == "" {
		gemini = getenv("GOOGLE_API_KEY")
	}
	return Secrets{
		OpenAI:     getenv("OPENAI_API_KEY"),
		Anthropic:  getenv("ANTHROPIC_API_KEY"),
		XAI:        getenv("XAI_API_KEY"),
		Gemini:     gemini,
		OpenRouter: getenv("OPENROUTER_API_KEY"),
		Firecrawl:  getenv("FIRECRAWL_API_KEY"),
		Apify:      getenv("APIFY_API_TOKEN"),
	}
}
