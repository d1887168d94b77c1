package slides

import "sync"

// Pipeline phases in execution order, each ending at a fixed percentage.
// The reported value never decreases.
const (
	phasePrepare  = 2
	phaseFetch    = 6
	phaseDownload = 35
	phaseDetect   = 60
	phaseExtract  = 90
	phaseRefine   = 96
	phaseOCR      = 99
	phaseDone     = 100
)

// ProgressFunc receives progress updates: a monotone percentage and a short
// stage label.
type ProgressFunc func(percent int, stage string)

// progressTracker maps per-phase fractions onto the global percentage scale
// and enforces monotonicity.
type progressTracker struct {
	mu   sync.Mutex
	last int
	fn   ProgressFunc
}

func newProgressTracker(fn ProgressFunc) *progressTracker {
	return &progressTracker{fn: fn}
}

// phase reports completion of an entire phase.
func (p *progressTracker) phase(endPct int, stage string) {
	p.report(endPct, stage)
}

// within reports fractional progress inside a phase spanning [startPct,
// endPct].
func (p *progressTracker) within(startPct, endPct int, fraction float64, stage string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	p.report(startPct+int(fraction*float64(endPct-startPct)), stage)
}

func (p *progressTracker) report(pct int, stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pct < p.last {
		pct = p.last
	}
	p.last = pct
	if p.fn != nil {
		p.fn(pct, stage)
	}
}
