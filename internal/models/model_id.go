// Package models defines the core domain types for summarize.
package models

import (
	"fmt"
	"strings"
)

// Provider identifies an LLM provider.
type Provider string

// Known providers. AnthropicCompatible covers third-party endpoints speaking
// the Anthropic wire shape.
const (
	ProviderOpenAI              Provider = "openai"
	ProviderAnthropic           Provider = "anthropic"
	ProviderGoogle              Provider = "google"
	ProviderXAI                 Provider = "xai"
	ProviderZAI                 Provider = "zai"
	ProviderOpenRouter          Provider = "openrouter"
	ProviderAnthropicCompatible Provider = "anthropic-compatible"
)

// KnownProviders lists every provider the registry can construct a client for.
var KnownProviders = []Provider{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGoogle,
	ProviderXAI,
	ProviderZAI,
	ProviderOpenRouter,
	ProviderAnthropicCompatible,
}

// ModelID is a gateway-style model identifier of the form "provider/name".
// The name may itself contain slashes (OpenRouter model paths do).
type ModelID struct {
	Provider Provider `json:"provider"`
	Name     string   `json:"name"`
}

// ParseModelID splits a gateway-style identifier at the first slash.
// Parsing is purely lexical; provider validity is checked separately.
func ParseModelID(s string) (ModelID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModelID{}, fmt.Errorf("empty model id")
	}
	idx := strings.Index(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return ModelID{}, fmt.Errorf("model id %q is not of the form provider/model", s)
	}
	return ModelID{
		Provider: Provider(s[:idx]),
		Name:     s[idx+1:],
	}, nil
}

// String returns the gateway-style form.
func (m ModelID) String() string {
	return string(m.Provider) + "/" + m.Name
}

// IsZero reports whether the ID is unset.
func (m ModelID) IsZero() bool {
	return m.Provider == "" && m.Name == ""
}

// KnownProvider reports whether the provider is one the registry supports.
func (m ModelID) KnownProvider() bool {
	for _, p := range KnownProviders {
		if m.Provider == p {
			return true
		}
	}
	return false
}

// IsFree reports whether this is an OpenRouter free-tier model.
func (m ModelID) IsFree() bool {
	return strings.HasSuffix(m.Name, ":free")
}
