package models

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunState is the daemon-side lifecycle of one summarization job.
// Transitions are monotonic: queued → running → done|failed.
type RunState string

// Run states.
const (
	RunQueued  RunState = "queued"
	RunRunning RunState = "running"
	RunDone    RunState = "done"
	RunFailed  RunState = "failed"
)

// IsTerminal reports whether the state is final.
func (s RunState) IsTerminal() bool {
	return s == RunDone || s == RunFailed
}

// EventName identifies an SSE event variant.
type EventName string

// SSE event names, in the wire form `event: <name>`.
const (
	EventChunk  EventName = "chunk"
	EventError  EventName = "error"
	EventSlides EventName = "slides"
	EventStatus EventName = "status"
	EventDone   EventName = "done"
)

// SseEvent is one append-only entry in a run's event log.
type SseEvent struct {
	Name EventName `json:"name"`
	Data any       `json:"data"`
}

// NewRunID generates a new lexically sortable run identifier.
func NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// SummarizeMode distinguishes the daemon job modes.
type SummarizeMode string

// Daemon summarize modes: "url" runs the full pipeline; "page" summarizes
// caller-supplied page text.
const (
	ModeURL  SummarizeMode = "url"
	ModePage SummarizeMode = "page"
)

// SummarizeRequest is the body of POST /v1/summarize.
type SummarizeRequest struct {
	URL           string        `json:"url"`
	Mode          SummarizeMode `json:"mode"`
	Title         string        `json:"title,omitempty"`
	Text          string        `json:"text,omitempty"`
	Truncated     bool          `json:"truncated,omitempty"`
	Model         string        `json:"model,omitempty"`
	Length        string        `json:"length,omitempty"`
	Language      string        `json:"language,omitempty"`
	Prompt        string        `json:"prompt,omitempty"`
	MaxCharacters int           `json:"maxCharacters,omitempty"`
	ExtractOnly   bool          `json:"extractOnly,omitempty"`
	Slides        bool          `json:"slides,omitempty"`
}

// SummaryLength is the requested summary size tier.
type SummaryLength string

// Summary length tiers.
const (
	LengthShort  SummaryLength = "short"
	LengthMedium SummaryLength = "medium"
	LengthLong   SummaryLength = "long"
	LengthXL     SummaryLength = "xl"
	LengthXXL    SummaryLength = "xxl"
)

// ValidLength reports whether s is a known length tier.
func ValidLength(s string) bool {
	switch SummaryLength(s) {
	case LengthShort, LengthMedium, LengthLong, LengthXL, LengthXXL:
		return true
	}
	return false
}
