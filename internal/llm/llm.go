// Package llm implements the model-call layer: a small client interface with
// generate and stream operations, concrete clients for the OpenAI-compatible
// and Anthropic wire shapes, a provider registry with credential and base-URL
// resolution, and preset fallback across candidate models.
package llm

import (
	"context"
	"time"

	"github.com/jmylchreest/summarize/internal/models"
)

// Request is one model invocation.
type Request struct {
	Model           string
	System          string
	Prompt          string
	MaxOutputTokens int
	Temperature     float64
}

// Response is the outcome of a completed call. Usage fields are nil when the
// provider did not report them.
type Response struct {
	Text  string
	Usage models.TokenUsage
}

// DeltaFunc receives raw text deltas during a streaming call. Callers merge
// deltas with MergeStreamingChunk; the client does not de-duplicate.
type DeltaFunc func(delta string)

// Client is the capability every provider backend exposes.
type Client interface {
	// Generate runs the request to completion and returns the full text.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Stream runs the request, invoking onDelta for each text delta, and
	// returns the final response (full text plus usage).
	Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error)

	// Provider identifies the backend.
	Provider() models.Provider
}

// DefaultRequestTimeout bounds a single model call when the caller supplies
// no deadline of its own.
const DefaultRequestTimeout = 5 * time.Minute
