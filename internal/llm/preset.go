package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/models"
)

// FreePresetName is the built-in preset refreshed by the refresh-free
// command. Exhausting its candidates appends a refresh hint to the error.
const FreePresetName = "free"

// ResolveCandidates picks the first rule in the preset matching the input
// kind (an empty When matches everything) and parses its candidates.
func ResolveCandidates(preset config.Preset, inputKind string) ([]models.ModelID, error) {
	for _, rule := range preset.Rules {
		if !ruleMatches(rule, inputKind) {
			continue
		}
		if len(rule.Candidates) == 0 {
			continue
		}
		ids := make([]models.ModelID, 0, len(rule.Candidates))
		for _, cand := range rule.Candidates {
			id, err := models.ParseModelID(cand)
			if err != nil {
				return nil, models.Errorf(models.ErrKindConfig, "preset candidate %q: %v", cand, err)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	return nil, models.Errorf(models.ErrKindConfig, "preset has no rule matching input kind %q", inputKind)
}

func ruleMatches(rule config.PresetRule, inputKind string) bool {
	if len(rule.When) == 0 {
		return true
	}
	for _, when := range rule.When {
		if strings.EqualFold(when, inputKind) {
			return true
		}
	}
	return false
}

// CallFunc performs a model call against a resolved client. The returned
// response's text decides whether fallback continues: whitespace-only output
// moves on to the next candidate.
type CallFunc func(ctx context.Context, client Client, id models.ModelID) (*Response, error)

// RunFallback iterates candidates in order, skipping providers without
// credentials, until one produces non-empty output. When every candidate
// fails it surfaces the last real error; for the built-in free preset a
// refresh hint is appended.
func (r *Registry) RunFallback(ctx context.Context, presetName string, candidates []models.ModelID, fn CallFunc) (*Response, models.ModelID, error) {
	if len(candidates) == 0 {
		return nil, models.ModelID{}, models.Errorf(models.ErrKindConfig, "no candidate models to try")
	}

	var lastErr error
	skipped := 0

	for _, id := range candidates {
		client, err := r.ClientFor(id)
		if err != nil {
			if models.IsKind(err, models.ErrKindModelAccess) {
				// No credentials for this provider; try the next candidate.
				skipped++
				if lastErr == nil {
					lastErr = err
				}
				continue
			}
			return nil, models.ModelID{}, err
		}

		resp, err := fn(ctx, client, id)
		if err != nil {
			if !IsRetryableForFallback(err) {
				return nil, models.ModelID{}, err
			}
			lastErr = err
			continue
		}
		if strings.TrimSpace(resp.Text) == "" {
			lastErr = models.Errorf(models.ErrKindEmptyOutput, "model %q produced empty output", id)
			continue
		}
		return resp, id, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all %d candidates were skipped", skipped)
	}
	if presetName == FreePresetName {
		lastErr = fmt.Errorf("%w (run `summarize refresh-free` to refresh the free model list)", lastErr)
	}
	return nil, models.ModelID{}, lastErr
}
