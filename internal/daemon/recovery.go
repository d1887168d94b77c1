package daemon

import (
	"strings"
	"sync"
)

// unreachableSubstrings is the closed set of network-level error texts that
// count as "daemon unreachable". Anything else is a normal failure and must
// not arm recovery.
var unreachableSubstrings = []string{
	"failed to fetch",
	"networkerror",
	"network error",
	"connection refused",
	"load failed",
}

// IsUnreachableError reports whether an error message indicates the daemon
// could not be reached at the network level.
func IsUnreachableError(message string) bool {
	lower := strings.ToLower(message)
	for _, sub := range unreachableSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// RecoveryTracker implements the client-side recovery protocol: record a
// pending URL when the daemon was unreachable, and fire a recovery exactly
// once when the daemon is back, still showing that URL, and idle.
type RecoveryTracker struct {
	mu         sync.Mutex
	pendingURL string
	fired      bool
}

// NewRecoveryTracker builds an empty tracker.
func NewRecoveryTracker() *RecoveryTracker {
	return &RecoveryTracker{}
}

// RecordFailure arms the tracker when the failure was network-level
// unreachability. Other failures are ignored.
func (t *RecoveryTracker) RecordFailure(url, errMessage string) {
	if !IsUnreachableError(errMessage) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingURL = url
	t.fired = false
}

// URLChanged clears any pending state; navigating away abandons the retry.
func (t *RecoveryTracker) URLChanged(newURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingURL != "" && t.pendingURL != newURL {
		t.pendingURL = ""
		t.fired = false
	}
}

// Check evaluates a recovery probe. It returns true exactly once per armed
// failure, and only when the daemon is ready, the URL still matches, and no
// run is in flight.
func (t *RecoveryTracker) Check(isReady bool, currentURL string, isIdle bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pendingURL == "" || t.fired {
		return false
	}
	if !isReady || !isIdle || currentURL != t.pendingURL {
		return false
	}
	t.fired = true
	t.pendingURL = ""
	return true
}

// Pending reports whether a recovery is armed.
func (t *RecoveryTracker) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingURL != ""
}
