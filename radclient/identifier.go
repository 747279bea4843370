// Package radclient implements the client side of the protocol: an
// actor-model UDP socket that allocates request identifiers, tracks
// pending requests awaiting a response, retries/times them out and
// applies a per-endpoint circuit breaker.
package radclient

import "fmt"

// identifierAllocator hands out RADIUS packet identifiers 1..255 for a
// single endpoint, cycling a cursor so consecutive requests spread
// across the id space instead of reusing the same few values. Id 0 is
// never allocated. Not safe for concurrent use; it is only ever
// touched from the owning event loop goroutine.
type identifierAllocator struct {
	inUse  [256]bool
	cursor byte
}

func newIdentifierAllocator() *identifierAllocator {
	return &identifierAllocator{cursor: 1}
}

// acquire returns the next free identifier, or an error if all 255
// slots are in use.
func (a *identifierAllocator) acquire(endpoint string) (byte, error) {
	start := a.cursor
	for {
		id := a.cursor
		a.cursor++
		if a.cursor == 0 {
			a.cursor = 1
		}
		if id != 0 && !a.inUse[id] {
			a.inUse[id] = true
			return id, nil
		}
		if a.cursor == start {
			return 0, fmt.Errorf("radclient: exhausted identifiers for endpoint %s", endpoint)
		}
	}
}

func (a *identifierAllocator) release(id byte) {
	a.inUse[id] = false
}
