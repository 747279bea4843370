package radclient

import "time"

// endpointHealth implements the per-endpoint circuit breaker. Like the
// identifier allocator and the pending-request table, it is only ever
// touched from the owning event loop goroutine, so no locking is
// needed here despite the state being shared across every request
// sent to that endpoint.
type endpointHealth struct {
	failCount       uint
	blacklistUntil  time.Time
	failThreshold   uint
	blacklistPeriod time.Duration
}

func newEndpointHealth(failThreshold uint, blacklistPeriod time.Duration) *endpointHealth {
	return &endpointHealth{
		failThreshold:   failThreshold,
		blacklistPeriod: blacklistPeriod,
	}
}

// blacklisted reports whether the endpoint is currently suppressed,
// lazily clearing the state once the quarantine period has elapsed.
func (h *endpointHealth) blacklisted(now time.Time) bool {
	if h.blacklistUntil.IsZero() {
		return false
	}
	if !h.blacklistUntil.After(now) {
		h.failCount = 0
		h.blacklistUntil = time.Time{}
		return false
	}
	return true
}

func (h *endpointHealth) onSuccess() {
	h.failCount = 0
	h.blacklistUntil = time.Time{}
}

// onFailure increments the error count and, if it just reached the
// threshold and no blacklist window is already active, opens one. The
// "already active" guard keeps a late, already-accounted-for failure
// from pushing the window further out.
func (h *endpointHealth) onFailure(now time.Time) {
	h.failCount++
	if h.failCount >= h.failThreshold && h.blacklistUntil.IsZero() {
		h.blacklistUntil = now.Add(h.blacklistPeriod)
	}
}
