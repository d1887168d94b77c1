// Package costbook accumulates per-call token usage and auxiliary service
// hits for one run and renders a unified cost report.
package costbook

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jmylchreest/summarize/internal/models"
)

// Book is a run-scoped append-only log of LLM calls and service hits.
// Appends are safe for concurrent use.
type Book struct {
	mu       sync.Mutex
	calls    []models.LlmCall
	services map[string]int
	pricing  *models.PricingTable
}

// New creates an empty book using the given pricing table. A nil table means
// every cost is unknown.
func New(pricing *models.PricingTable) *Book {
	return &Book{
		services: make(map[string]int),
		pricing:  pricing,
	}
}

// Record appends one LLM call.
func (b *Book) Record(call models.LlmCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

// Hit counts one use of an auxiliary service (transcription, firecrawl, ...).
func (b *Book) Hit(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.services[service]++
}

// Row is one aggregated (provider, model) line of the report.
type Row struct {
	Provider models.Provider
	Model    string
	Label    string
	Calls    int
	Usage    models.TokenUsage
	// CostUSD is nil when pricing for the model is unknown or no token
	// column contributed; unknown is not zero.
	CostUSD *float64
}

// ServiceRow is one aggregated auxiliary-service line.
type ServiceRow struct {
	Service string
	Hits    int
	CostUSD *float64
}

// Report is the aggregate view of a book.
type Report struct {
	Rows     []Row
	Services []ServiceRow
	// TotalUSD is nil unless at least one row or service contributed a
	// real cost.
	TotalUSD *float64
}

// Report aggregates the book by (provider, model).
func (b *Book) Report() Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	type key struct {
		provider models.Provider
		model    string
	}
	groups := make(map[key]*Row)
	var order []key

	for _, call := range b.calls {
		k := key{call.Provider, call.Model}
		row, ok := groups[k]
		if !ok {
			row = &Row{
				Provider: call.Provider,
				Model:    call.Model,
				Label:    labelFor(call),
			}
			groups[k] = row
			order = append(order, k)
		}
		row.Calls++
		row.Usage.Prompt = addPreservingNil(row.Usage.Prompt, call.Usage.Prompt)
		row.Usage.Completion = addPreservingNil(row.Usage.Completion, call.Usage.Completion)
		row.Usage.Total = addPreservingNil(row.Usage.Total, call.Usage.Total)
	}

	report := Report{}
	var total float64
	haveTotal := false

	for _, k := range order {
		row := groups[k]
		if price := b.pricing.Lookup(models.ModelID{Provider: row.Provider, Name: row.Model}); price != nil {
			if row.Usage.Prompt != nil && row.Usage.Completion != nil {
				cost := float64(*row.Usage.Prompt)/1e6*price.InputUsdPer1M +
					float64(*row.Usage.Completion)/1e6*price.OutputUsdPer1M
				row.CostUSD = &cost
				total += cost
				haveTotal = true
			}
		}
		report.Rows = append(report.Rows, *row)
	}

	names := make([]string, 0, len(b.services))
	for name := range b.services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sr := ServiceRow{Service: name, Hits: b.services[name]}
		if rate := b.pricing.ServiceRate(name); rate != nil {
			cost := *rate * float64(sr.Hits)
			sr.CostUSD = &cost
			total += cost
			haveTotal = true
		}
		report.Services = append(report.Services, sr)
	}

	if haveTotal {
		report.TotalUSD = &total
	}
	return report
}

// addPreservingNil sums token columns keeping nil semantics: the sum is nil
// iff no element contributed a real number.
func addPreservingNil(acc, v *int64) *int64 {
	if v == nil {
		return acc
	}
	if acc == nil {
		n := *v
		return &n
	}
	n := *acc + *v
	return &n
}

// labelFor picks the display label for a call: the user-supplied preset id
// when it was a full provider/... id, otherwise the canonical provider form.
func labelFor(call models.LlmCall) string {
	if call.PresetID != "" && strings.Contains(call.PresetID, "/") {
		return call.PresetID
	}
	return string(call.Provider) + "/" + call.Model
}

// FormatCost renders a cost with at most two decimals. Positive costs that
// round to $0.00 render as "<$0.01"; nil renders as "n/a".
func FormatCost(cost *float64) string {
	if cost == nil {
		return "n/a"
	}
	if *cost > 0 && *cost < 0.005 {
		return "<$0.01"
	}
	return fmt.Sprintf("$%.2f", *cost)
}

// FinishedLine renders the single "Finished" summary line emitted after a
// successful run.
func (r Report) FinishedLine() string {
	var prompt, completion int64
	havePrompt, haveCompletion := false, false
	for _, row := range r.Rows {
		if row.Usage.Prompt != nil {
			prompt += *row.Usage.Prompt
			havePrompt = true
		}
		if row.Usage.Completion != nil {
			completion += *row.Usage.Completion
			haveCompletion = true
		}
	}

	parts := []string{"Finished"}
	if havePrompt || haveCompletion {
		parts = append(parts, fmt.Sprintf("tokens=%s/%s",
			formatCount(prompt, havePrompt), formatCount(completion, haveCompletion)))
	}
	parts = append(parts, "cost="+FormatCost(r.TotalUSD))
	return strings.Join(parts, " ")
}

func formatCount(n int64, have bool) string {
	if !have {
		return "?"
	}
	return fmt.Sprintf("%d", n)
}
