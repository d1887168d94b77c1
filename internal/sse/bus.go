// Package sse is the per-run event bus behind the daemon's event stream.
// Each run owns an append-only event log with a single writer; subscribers
// connected before the run finishes receive events live, and late subscribers
// get a replay of the full log followed by the terminal event.
package sse

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/summarize/internal/models"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// subscriberBuffer bounds a subscriber's channel. A subscriber that falls
// this far behind the writer is dropped.
const subscriberBuffer = 256

// DefaultRetention is how long finished runs stay addressable for replay.
const DefaultRetention = 30 * time.Minute

// DefaultMaxRuns caps the number of retained runs regardless of age.
const DefaultMaxRuns = 200

// Run is one summarization job tracked by the daemon.
type Run struct {
	ID        string
	URL       string
	State     models.RunState
	CreatedAt time.Time
	// FinishedAt is set when the run reaches a terminal state.
	FinishedAt time.Time

	// Result carries the final output for snapshot endpoints; opaque to the
	// bus.
	Result any

	mu          sync.Mutex
	events      []models.SseEvent
	subscribers map[int]chan models.SseEvent
	nextSubID   int
}

// Bus tracks runs and fans their events out to subscribers.
type Bus struct {
	mu        sync.Mutex
	runs      map[string]*Run
	retention time.Duration
	maxRuns   int
	now       func() time.Time
	logger    *slog.Logger
}

// Options configure a Bus.
type Options struct {
	Retention time.Duration
	MaxRuns   int
	Logger    *slog.Logger
}

// NewBus builds a Bus.
func NewBus(opts Options) *Bus {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.MaxRuns <= 0 {
		opts.MaxRuns = DefaultMaxRuns
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		runs:      make(map[string]*Run),
		retention: opts.Retention,
		maxRuns:   opts.MaxRuns,
		now:       time.Now,
		logger:    logger.With("component", "sse"),
	}
}

// CreateRun registers a new queued run and returns it.
func (b *Bus) CreateRun(url string) *Run {
	run := &Run{
		ID:          models.NewRunID(),
		URL:         url,
		State:       models.RunQueued,
		CreatedAt:   b.now(),
		subscribers: make(map[int]chan models.SseEvent),
	}

	b.mu.Lock()
	b.runs[run.ID] = run
	b.evictLocked()
	b.mu.Unlock()
	return run
}

// Get returns the run for id.
func (b *Bus) Get(id string) (*Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, ok := b.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// SetState transitions the run's lifecycle state. Transitions are monotonic;
// a terminal run never changes state again.
func (b *Bus) SetState(id string, state models.RunState) error {
	run, err := b.Get(id)
	if err != nil {
		return err
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	if run.State.IsTerminal() {
		return nil
	}
	run.State = state
	if state.IsTerminal() {
		run.FinishedAt = b.now()
	}
	return nil
}

// Publish appends an event to the run's log and delivers it to live
// subscribers. The orchestrator is the only caller per run, which gives the
// log its total order. Publishing `done` or `error` closes all subscriber
// channels.
func (b *Bus) Publish(id string, event models.SseEvent) error {
	run, err := b.Get(id)
	if err != nil {
		return err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	run.events = append(run.events, event)
	for subID, ch := range run.subscribers {
		select {
		case ch <- event:
		default:
			// The subscriber stopped draining; cut it loose rather than
			// blocking the writer.
			b.logger.Warn("dropping slow event subscriber", "run", id)
			close(ch)
			delete(run.subscribers, subID)
		}
	}

	if event.Name == models.EventDone || event.Name == models.EventError {
		for subID, ch := range run.subscribers {
			close(ch)
			delete(run.subscribers, subID)
		}
	}
	return nil
}

// Subscribe attaches to a run's event stream. The replay slice holds every
// event appended so far; live events arrive on the channel afterwards. For a
// finished run the channel comes back already closed, so a late subscriber
// sees the full replay ending in the terminal event. Cancel releases the
// subscription.
func (b *Bus) Subscribe(id string) (replay []models.SseEvent, live <-chan models.SseEvent, cancel func(), err error) {
	run, err := b.Get(id)
	if err != nil {
		return nil, nil, nil, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	replay = make([]models.SseEvent, len(run.events))
	copy(replay, run.events)

	ch := make(chan models.SseEvent, subscriberBuffer)
	if run.State.IsTerminal() {
		close(ch)
		return replay, ch, func() {}, nil
	}

	subID := run.nextSubID
	run.nextSubID++
	run.subscribers[subID] = ch

	cancel = func() {
		run.mu.Lock()
		defer run.mu.Unlock()
		if _, ok := run.subscribers[subID]; ok {
			close(ch)
			delete(run.subscribers, subID)
		}
	}
	return replay, ch, cancel, nil
}

// SetResult stores the run's final payload for snapshot queries.
func (b *Bus) SetResult(id string, result any) error {
	run, err := b.Get(id)
	if err != nil {
		return err
	}
	run.mu.Lock()
	run.Result = result
	run.mu.Unlock()
	return nil
}

// Sweep drops finished runs past the retention window. The daemon calls this
// periodically.
func (b *Bus) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.retention)
	removed := 0
	for id, run := range b.runs {
		run.mu.Lock()
		expired := run.State.IsTerminal() && run.FinishedAt.Before(cutoff)
		run.mu.Unlock()
		if expired {
			delete(b.runs, id)
			removed++
		}
	}
	return removed
}

// ActiveCount reports how many runs have not reached a terminal state.
func (b *Bus) ActiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	active := 0
	for _, run := range b.runs {
		run.mu.Lock()
		if !run.State.IsTerminal() {
			active++
		}
		run.mu.Unlock()
	}
	return active
}

// evictLocked enforces the run cap by dropping the oldest finished runs.
// Caller holds b.mu.
func (b *Bus) evictLocked() {
	if len(b.runs) <= b.maxRuns {
		return
	}

	type aged struct {
		id        string
		createdAt time.Time
	}
	var finished []aged
	for id, run := range b.runs {
		run.mu.Lock()
		if run.State.IsTerminal() {
			finished = append(finished, aged{id: id, createdAt: run.CreatedAt})
		}
		run.mu.Unlock()
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].createdAt.Before(finished[j].createdAt) })

	for _, f := range finished {
		if len(b.runs) <= b.maxRuns {
			break
		}
		delete(b.runs, f.id)
	}
}
