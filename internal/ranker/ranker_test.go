package ranker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/models"
)

func TestParamsFromName(t *testing.T) {
	tests := []struct {
		name string
		want float64
	}{
		{"meta-llama/llama-3.3-70b-instruct:free", 70},
		{"qwen/qwen3-32b:free", 32},
		{"microsoft/phi-3.5-mini 3.8B", 3.8},
		{"mistralai/mixtral-8x7b-instruct:free", 56},
		{"some/model-without-size:free", 0},
		{"google/gemma-2-27b-it:free Gemma 2 27B", 27},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ParamsFromName(tt.name), 0.001, tt.name)
	}
}

type fakeProber struct {
	latency map[string]time.Duration
	errs    map[string][]error
	calls   map[string]int
}

func (p *fakeProber) Probe(_ context.Context, id models.ModelID) (time.Duration, error) {
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	n := p.calls[id.Name]
	p.calls[id.Name] = n + 1
	if errs := p.errs[id.Name]; n < len(errs) && errs[n] != nil {
		return 0, errs[n]
	}
	if d, ok := p.latency[id.Name]; ok {
		return d, nil
	}
	return 100 * time.Millisecond, nil
}

func catalogServer(t *testing.T, entries ...catalogModel) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[`)
		for i, e := range entries {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"id":%q,"name":%q,"created":%d}`, e.ID, e.Name, e.Created)
		}
		fmt.Fprint(w, `]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRanker(t *testing.T, srv *httptest.Server, prober Prober, slept *[]time.Duration) *Ranker {
	t.Helper()
	return New(Options{
		CatalogURL: srv.URL,
		Prober:     prober,
		Sleep: func(d time.Duration) {
			if slept != nil {
				*slept = append(*slept, d)
			}
		},
	})
}

func TestRefreshAgeFilter(t *testing.T) {
	now := time.Now()
	srv := catalogServer(t,
		catalogModel{ID: "fresh/model-70b:free", Name: "Fresh 70B", Created: now.AddDate(0, 0, -10).Unix()},
		catalogModel{ID: "stale/model-70b:free", Name: "Stale 70B", Created: now.AddDate(0, 0, -200).Unix()},
	)
	prober := &fakeProber{}

	r := newTestRanker(t, srv, prober, nil)
	ranked, err := r.Refresh(context.Background(), Params{MaxAgeDays: DefaultMaxAgeDays})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "fresh/model-70b:free", ranked[0].ID.Name)

	// Age filter disabled: both survive.
	prober2 := &fakeProber{}
	r2 := newTestRanker(t, srv, prober2, nil)
	ranked, err = r2.Refresh(context.Background(), Params{MaxAgeDays: 0})
	require.NoError(t, err)
	assert.Len(t, ranked, 2)
}

func TestRefreshFiltersSmallAndPaidModels(t *testing.T) {
	now := time.Now().Unix()
	srv := catalogServer(t,
		catalogModel{ID: "big/model-70b:free", Name: "Big", Created: now},
		catalogModel{ID: "small/model-8b:free", Name: "Small", Created: now},
		catalogModel{ID: "paid/model-70b", Name: "Paid", Created: now},
	)
	prober := &fakeProber{}

	r := newTestRanker(t, srv, prober, nil)
	ranked, err := r.Refresh(context.Background(), Params{})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "big/model-70b:free", ranked[0].ID.Name)
}

func TestRefreshCapsSelection(t *testing.T) {
	now := time.Now()
	entries := make([]catalogModel, 0, 15)
	for i := 0; i < 15; i++ {
		entries = append(entries, catalogModel{
			ID:      fmt.Sprintf("vendor/model-%02d-70b:free", i),
			Name:    fmt.Sprintf("Model %d", i),
			Created: now.AddDate(0, 0, -i).Unix(),
		})
	}
	srv := catalogServer(t, entries...)
	prober := &fakeProber{}

	r := newTestRanker(t, srv, prober, nil)
	ranked, err := r.Refresh(context.Background(), Params{})
	require.NoError(t, err)
	assert.Len(t, ranked, maxCandidates)
	// Newest first.
	assert.Equal(t, "vendor/model-00-70b:free", ranked[0].ID.Name)
}

func TestRefreshRateLimitRetriesOnce(t *testing.T) {
	srv := catalogServer(t,
		catalogModel{ID: "vendor/model-70b:free", Name: "Model", Created: time.Now().Unix()},
	)
	prober := &fakeProber{
		errs: map[string][]error{
			// First probe rate-limited then succeeds on retry; second probe clean.
			"vendor/model-70b:free": {models.Errorf(models.ErrKindRateLimit, "429")},
		},
	}
	var slept []time.Duration

	r := newTestRanker(t, srv, prober, &slept)
	ranked, err := r.Refresh(context.Background(), Params{Runs: 1, Verbose: true})
	require.NoError(t, err)
	require.Len(t, ranked, 1)

	assert.Equal(t, 2, ranked[0].Succeeded)
	require.Len(t, slept, 1)
	assert.GreaterOrEqual(t, slept[0], 60*time.Second)
	// 2 scheduled probes + 1 rate-limit retry.
	assert.Equal(t, 3, prober.calls["vendor/model-70b:free"])
}

func TestRefreshDropsPersistentFailures(t *testing.T) {
	srv := catalogServer(t,
		catalogModel{ID: "good/model-70b:free", Name: "Good", Created: time.Now().Unix()},
		catalogModel{ID: "dead/model-70b:free", Name: "Dead", Created: time.Now().Unix()},
	)
	dead := models.Errorf(models.ErrKindModelAccess, "model gone")
	prober := &fakeProber{
		errs: map[string][]error{
			"dead/model-70b:free": {dead, dead},
		},
	}

	r := newTestRanker(t, srv, prober, nil)
	ranked, err := r.Refresh(context.Background(), Params{Runs: 1})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "good/model-70b:free", ranked[0].ID.Name)
}

func TestRankOrdersBySuccessThenLatency(t *testing.T) {
	ranked := rank([]Candidate{
		{ID: models.ModelID{Name: "slow"}, Succeeded: 2, Latency: 900 * time.Millisecond},
		{ID: models.ModelID{Name: "flaky"}, Succeeded: 1, Latency: 100 * time.Millisecond},
		{ID: models.ModelID{Name: "fast"}, Succeeded: 2, Latency: 200 * time.Millisecond},
		{ID: models.ModelID{Name: "dead"}, Succeeded: 0},
	})
	require.Len(t, ranked, 3)
	assert.Equal(t, "fast", ranked[0].ID.Name)
	assert.Equal(t, "slow", ranked[1].ID.Name)
	assert.Equal(t, "flaky", ranked[2].ID.Name)
}

func TestApplyWritesFreePreset(t *testing.T) {
	cfg := &config.Config{}
	Apply(cfg, []Candidate{
		{ID: models.ModelID{Provider: models.ProviderOpenRouter, Name: "a/one-70b:free"}},
		{ID: models.ModelID{Provider: models.ProviderOpenRouter, Name: "b/two-32b:free"}},
	})

	preset, ok := cfg.Models["free"]
	require.True(t, ok)
	require.Len(t, preset.Rules, 1)
	assert.Equal(t, []string{
		"openrouter/a/one-70b:free",
		"openrouter/b/two-32b:free",
	}, preset.Rules[0].Candidates)
}
