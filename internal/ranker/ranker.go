// Package ranker discovers OpenRouter free-tier models, probes them with
// live calls, and persists the ranked shortlist as the built-in "free"
// preset's candidate list.
package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/httpclient"
	"github.com/jmylchreest/summarize/internal/llm"
	"github.com/jmylchreest/summarize/internal/models"
)

// Defaults for the refresh-free command.
const (
	DefaultRuns       = 1   // extra probes per model, on top of the first
	DefaultMinParams  = 27  // billions, name-heuristic
	DefaultMaxAgeDays = 180 // 0 disables the age filter

	maxCandidates = 10

	// rateLimitBackoff is the minimum sleep before the single retry when a
	// probe hits a rate limit.
	rateLimitBackoff = 60 * time.Second
)

const defaultCatalogURL = "https://openrouter.ai/api/v1/models"

// Params tune one refresh run.
type Params struct {
	Runs       int     // extra probes per model; total probes = 1 + Runs
	MinParams  float64 // minimum parameter count in billions
	MaxAgeDays int     // only models created within this window; 0 disables
	Verbose    bool
}

func (p Params) withDefaults() Params {
	if p.Runs <= 0 {
		p.Runs = DefaultRuns
	}
	if p.MinParams <= 0 {
		p.MinParams = DefaultMinParams
	}
	if p.MaxAgeDays < 0 {
		p.MaxAgeDays = DefaultMaxAgeDays
	}
	return p
}

// Prober runs one live call against a model and reports its latency.
type Prober interface {
	Probe(ctx context.Context, id models.ModelID) (time.Duration, error)
}

// Options wire a Ranker.
type Options struct {
	Registry   *llm.Registry
	HTTPClient *httpclient.Client
	Logger     *slog.Logger

	// CatalogURL overrides the OpenRouter models endpoint, mainly for tests.
	CatalogURL string

	// Prober overrides the default registry-backed prober.
	Prober Prober

	// Sleep replaces time.Sleep for rate-limit backoff, mainly for tests.
	Sleep func(time.Duration)
}

// Ranker fetches the catalog, filters and probes free models, and produces
// a ranked candidate list.
type Ranker struct {
	registry   *llm.Registry
	httpc      *httpclient.Client
	logger     *slog.Logger
	catalogURL string
	prober     Prober
	sleep      func(time.Duration)
	now        func() time.Time
}

// New builds a Ranker.
func New(opts Options) *Ranker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Ranker{
		registry:   opts.Registry,
		httpc:      opts.HTTPClient,
		logger:     logger.With("component", "ranker"),
		catalogURL: opts.CatalogURL,
		prober:     opts.Prober,
		sleep:      opts.Sleep,
		now:        time.Now,
	}
	if r.httpc == nil {
		r.httpc = httpclient.New(httpclient.DefaultConfig())
	}
	if r.catalogURL == "" {
		r.catalogURL = defaultCatalogURL
	}
	if r.prober == nil {
		r.prober = &registryProber{registry: opts.Registry}
	}
	if r.sleep == nil {
		r.sleep = time.Sleep
	}
	return r
}

// Candidate is one probed model with its ranking inputs.
type Candidate struct {
	ID        models.ModelID
	Params    float64 // billions, from the name heuristic
	Created   time.Time
	Succeeded int
	Probes    int
	Latency   time.Duration // mean over successful probes
}

// catalogModel is the subset of the OpenRouter /models entry we read.
type catalogModel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Created int64  `json:"created"`
}

type catalogResponse struct {
	Data []catalogModel `json:"data"`
}

// Refresh fetches the free-model catalog, probes the shortlist, and returns
// the ranked candidates. It does not touch the config; use Apply for that.
func (r *Ranker) Refresh(ctx context.Context, params Params) ([]Candidate, error) {
	params = params.withDefaults()

	catalog, err := r.fetchCatalog(ctx)
	if err != nil {
		return nil, err
	}

	shortlist := r.filter(catalog, params)
	if len(shortlist) == 0 {
		return nil, models.Errorf(models.ErrKindModelAccess,
			"no free models matched the filters (min %gB, max age %d days)", params.MinParams, params.MaxAgeDays)
	}
	r.logger.Info("probing free models", "count", len(shortlist), "probes_per_model", 1+params.Runs)

	for i := range shortlist {
		r.probe(ctx, &shortlist[i], 1+params.Runs, params.Verbose)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	ranked := rank(shortlist)
	if len(ranked) == 0 {
		return nil, models.Errorf(models.ErrKindModelAccess, "every probed free model failed")
	}
	return ranked, nil
}

// Apply writes the ranked candidates into the built-in free preset. The
// caller persists the config afterwards.
func Apply(cfg *config.Config, ranked []Candidate) {
	ids := make([]string, 0, len(ranked))
	for _, c := range ranked {
		ids = append(ids, c.ID.String())
	}
	if cfg.Models == nil {
		cfg.Models = make(map[string]config.Preset)
	}
	cfg.Models[llm.FreePresetName] = config.Preset{
		Mode:  "auto",
		Rules: []config.PresetRule{{Candidates: ids}},
	}
}

func (r *Ranker) fetchCatalog(ctx context.Context) ([]catalogModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.catalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}
	if r.registry != nil {
		if key := r.registry.APIKey(models.ProviderOpenRouter); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching model catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.Errorf(models.ErrKindModelAccess, "model catalog returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading model catalog: %w", err)
	}
	var catalog catalogResponse
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, fmt.Errorf("parsing model catalog: %w", err)
	}
	return catalog.Data, nil
}

// filter keeps :free models that pass the parameter and age gates, newest
// first, capped at maxCandidates.
func (r *Ranker) filter(catalog []catalogModel, params Params) []Candidate {
	var cutoff time.Time
	if params.MaxAgeDays > 0 {
		cutoff = r.now().AddDate(0, 0, -params.MaxAgeDays)
	}

	var out []Candidate
	for _, m := range catalog {
		if !strings.HasSuffix(m.ID, ":free") {
			continue
		}
		size := ParamsFromName(m.ID + " " + m.Name)
		if size < params.MinParams {
			r.logger.Debug("skipping small model", "model", m.ID, "params_b", size)
			continue
		}
		created := time.Unix(m.Created, 0)
		if !cutoff.IsZero() && created.Before(cutoff) {
			r.logger.Debug("skipping old model", "model", m.ID, "created", created)
			continue
		}
		out = append(out, Candidate{
			ID:      models.ModelID{Provider: models.ProviderOpenRouter, Name: m.ID},
			Params:  size,
			Created: created,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

// probe runs the requested number of probes against one candidate. A
// rate-limited probe sleeps at least a minute and retries exactly once.
func (r *Ranker) probe(ctx context.Context, c *Candidate, probes int, verbose bool) {
	var total time.Duration
	for i := 0; i < probes; i++ {
		c.Probes++
		latency, err := r.prober.Probe(ctx, c.ID)
		if err != nil && models.IsKind(err, models.ErrKindRateLimit) {
			if verbose {
				r.logger.Info("rate limited, backing off", "model", c.ID, "sleep", rateLimitBackoff)
			}
			r.sleep(rateLimitBackoff)
			latency, err = r.prober.Probe(ctx, c.ID)
		}
		if err != nil {
			r.logger.Debug("probe failed", "model", c.ID, "attempt", i+1, "error", err)
			continue
		}
		c.Succeeded++
		total += latency
		if verbose {
			r.logger.Info("probe ok", "model", c.ID, "attempt", i+1, "latency", latency)
		}
	}
	if c.Succeeded > 0 {
		c.Latency = total / time.Duration(c.Succeeded)
	}
}

// rank orders candidates by success count, then mean latency. Models with
// no successful probe are dropped.
func rank(candidates []Candidate) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if c.Succeeded > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Succeeded != out[j].Succeeded {
			return out[i].Succeeded > out[j].Succeeded
		}
		return out[i].Latency < out[j].Latency
	})
	return out
}

var (
	// moePattern matches mixture-of-experts sizes like "8x7b".
	moePattern = regexp.MustCompile(`(?i)(\d+)x(\d+(?:\.\d+)?)b\b`)
	// sizePattern matches plain sizes like "70b", "3.8B", "qwen3-32b".
	sizePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)b\b`)
)

// ParamsFromName estimates a model's parameter count in billions from its
// identifier and display name. Returns 0 when no size is recognizable.
func ParamsFromName(name string) float64 {
	best := 0.0
	for _, m := range moePattern.FindAllStringSubmatch(name, -1) {
		experts, err1 := strconv.ParseFloat(m[1], 64)
		size, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && experts*size > best {
			best = experts * size
		}
	}
	for _, m := range sizePattern.FindAllStringSubmatch(name, -1) {
		size, err := strconv.ParseFloat(m[1], 64)
		if err == nil && size > best {
			best = size
		}
	}
	return best
}

// registryProber issues a minimal generation through the provider registry.
type registryProber struct {
	registry *llm.Registry
}

func (p *registryProber) Probe(ctx context.Context, id models.ModelID) (time.Duration, error) {
	client, err := p.registry.ClientFor(id)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	resp, err := client.Generate(ctx, llm.Request{
		Model:           id.Name,
		Prompt:          "Reply with the single word: ready",
		MaxOutputTokens: 16,
	})
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return 0, models.ErrEmptySummary
	}
	return time.Since(start), nil
}
