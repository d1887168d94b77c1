package llm

import (
	"net/http"
	"strings"
	"sync"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/models"
)

// Provider default base URLs. Non-openai providers all speak the
// chat-completions shape at their own endpoints.
const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultAnthropicBaseURL  = "https://api.anthropic.com"
	defaultGoogleBaseURL     = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultXAIBaseURL        = "https://api.x.ai/v1"
	defaultZAIBaseURL        = "https://api.z.ai/api/paas/v4"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// BaseURLOverrides carries CLI-flag base URLs, which win over both the
// environment and the config file.
type BaseURLOverrides struct {
	OpenAI    string
	Anthropic string
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Config    *config.Config
	Secrets   config.Secrets
	Overrides BaseURLOverrides
	// Getenv resolves environment lookups; defaults to an empty lookup so
	// tests stay hermetic unless they inject one.
	Getenv func(string) string
	// HTTPClient is shared by every constructed client. Streaming responses
	// must not be cut off by a client-level timeout, so the registry expects
	// a client without one and relies on per-request contexts.
	HTTPClient *http.Client
}

// Registry constructs and caches one Client per provider.
type Registry struct {
	cfg       *config.Config
	secrets   config.Secrets
	overrides BaseURLOverrides
	getenv    func(string) string
	httpc     *http.Client

	mu      sync.Mutex
	clients map[models.Provider]Client
}

// NewRegistry builds a Registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Config == nil {
		opts.Config = &config.Config{}
	}
	if opts.Getenv == nil {
		opts.Getenv = func(string) string { return "" }
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Registry{
		cfg:       opts.Config,
		secrets:   opts.Secrets,
		overrides: opts.Overrides,
		getenv:    opts.Getenv,
		httpc:     opts.HTTPClient,
		clients:   make(map[models.Provider]Client),
	}
}

// APIKey returns the credential for a provider, empty when not configured.
func (r *Registry) APIKey(p models.Provider) string {
	switch p {
	case models.ProviderOpenAI:
		return r.secrets.OpenAI
	case models.ProviderAnthropic, models.ProviderAnthropicCompatible:
		return r.secrets.Anthropic
	case models.ProviderGoogle:
		return r.secrets.Gemini
	case models.ProviderXAI:
		return r.secrets.XAI
	case models.ProviderZAI:
		return r.getenv("ZAI_API_KEY")
	case models.ProviderOpenRouter:
		return r.secrets.OpenRouter
	}
	return ""
}

// HasCredentials reports whether the provider can be called at all.
func (r *Registry) HasCredentials(p models.Provider) bool {
	return r.APIKey(p) != ""
}

// baseURL resolves the effective base URL for a provider: CLI flag, then
// provider env var, then config file, then the built-in default.
func (r *Registry) baseURL(p models.Provider) (url string, custom bool) {
	pick := func(flag, env, cfg, def string) (string, bool) {
		if flag != "" {
			return flag, true
		}
		if v := r.getenv(env); v != "" {
			return v, true
		}
		if cfg != "" {
			return cfg, true
		}
		return def, false
	}

	switch p {
	case models.ProviderOpenAI:
		return pick(r.overrides.OpenAI, "OPENAI_BASE_URL", r.cfg.OpenAI.BaseURL, defaultOpenAIBaseURL)
	case models.ProviderAnthropic, models.ProviderAnthropicCompatible:
		return pick(r.overrides.Anthropic, "ANTHROPIC_BASE_URL", r.cfg.Anthropic.BaseURL, defaultAnthropicBaseURL)
	case models.ProviderGoogle:
		return defaultGoogleBaseURL, false
	case models.ProviderXAI:
		return defaultXAIBaseURL, false
	case models.ProviderZAI:
		return defaultZAIBaseURL, false
	case models.ProviderOpenRouter:
		return defaultOpenRouterBaseURL, false
	}
	return "", false
}

// useChatCompletions decides the wire shape for openai. A custom base URL
// forces chat-completions: compatible gateways rarely implement the
// responses shape.
func (r *Registry) useChatCompletions(custom bool) bool {
	if custom {
		return true
	}
	if strings.EqualFold(r.getenv("OPENAI_USE_CHAT_COMPLETIONS"), "true") ||
		r.getenv("OPENAI_USE_CHAT_COMPLETIONS") == "1" {
		return true
	}
	return r.cfg.OpenAI.UseChatCompletions
}

// ClientFor returns the client serving a model ID, constructing it on first
// use. Missing credentials are a model-access error naming the provider.
func (r *Registry) ClientFor(id models.ModelID) (Client, error) {
	if !id.KnownProvider() {
		return nil, models.Errorf(models.ErrKindInput, "unknown provider %q in model id %q", id.Provider, id)
	}
	if !r.HasCredentials(id.Provider) {
		return nil, models.Errorf(models.ErrKindModelAccess,
			"no API key configured for provider %q (model %q)", id.Provider, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id.Provider]; ok {
		return c, nil
	}

	key := r.APIKey(id.Provider)
	base, custom := r.baseURL(id.Provider)

	var c Client
	switch id.Provider {
	case models.ProviderAnthropic, models.ProviderAnthropicCompatible:
		c = newAnthropicClient(id.Provider, key, base, r.httpc)
	case models.ProviderOpenAI:
		c = newOpenAIClient(id.Provider, key, base, r.useChatCompletions(custom), r.httpc)
	default:
		// google, xai, zai, openrouter: OpenAI-compatible chat completions.
		c = newOpenAIClient(id.Provider, key, base, true, r.httpc)
	}
	r.clients[id.Provider] = c
	return c, nil
}
