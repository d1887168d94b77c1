package models

// ModelPricing holds per-million-token USD rates for one model.
type ModelPricing struct {
	InputUsdPer1M  float64 `json:"inputUsdPer1M"`
	OutputUsdPer1M float64 `json:"outputUsdPer1M"`
}

// PricingTable maps model keys to rates plus flat per-request rates for
// auxiliary services (transcription, transcript actors).
//
// Lookup is two-tier: the exact "provider/model" key first, then the bare
// model name. A missing entry means unknown cost, not zero.
type PricingTable struct {
	Models   map[string]ModelPricing `json:"models"`
	Services map[string]float64      `json:"services"`
}

// DefaultPricing returns the built-in pricing table.
func DefaultPricing() *PricingTable {
	return &PricingTable{
		Models: map[string]ModelPricing{
			"openai/gpt-5.2":              {InputUsdPer1M: 1.25, OutputUsdPer1M: 10.00},
			"openai/gpt-5-mini":           {InputUsdPer1M: 0.25, OutputUsdPer1M: 2.00},
			"openai/gpt-4o-mini":          {InputUsdPer1M: 0.15, OutputUsdPer1M: 0.60},
			"anthropic/claude-opus-4-5":   {InputUsdPer1M: 5.00, OutputUsdPer1M: 25.00},
			"anthropic/claude-sonnet-4-5": {InputUsdPer1M: 3.00, OutputUsdPer1M: 15.00},
			"anthropic/claude-haiku-4-5":  {InputUsdPer1M: 1.00, OutputUsdPer1M: 5.00},
			"google/gemini-2.5-flash":     {InputUsdPer1M: 0.30, OutputUsdPer1M: 2.50},
			"google/gemini-2.5-pro":       {InputUsdPer1M: 1.25, OutputUsdPer1M: 10.00},
			"xai/grok-4":                  {InputUsdPer1M: 3.00, OutputUsdPer1M: 15.00},
			"xai/grok-4-fast":             {InputUsdPer1M: 0.20, OutputUsdPer1M: 0.50},
		},
		Services: map[string]float64{
			"transcription":    0.006,
			"transcript-actor": 0.005,
			"firecrawl-scrape": 0.001,
		},
	}
}

// Lookup resolves pricing for a model ID. Returns nil when the model is not
// in the table; callers must treat that as unknown cost, never zero.
func (t *PricingTable) Lookup(id ModelID) *ModelPricing {
	if t == nil || t.Models == nil {
		return nil
	}
	if p, ok := t.Models[id.String()]; ok {
		return &p
	}
	if p, ok := t.Models[id.Name]; ok {
		return &p
	}
	return nil
}

// ServiceRate returns the flat per-request rate for an auxiliary service, or
// nil when unknown.
func (t *PricingTable) ServiceRate(name string) *float64 {
	if t == nil || t.Services == nil {
		return nil
	}
	if r, ok := t.Services[name]; ok {
		return &r
	}
	return nil
}
