package proxy

import (
	"math"
	"math/rand"
	"sync"
)

// Backoff defaults.
const (
	// backoffBase is the exponential growth base for reconnect delays.
	backoffBase = 2.0

	// DefaultMaxReconnectDelay caps the reconnect delay in seconds.
	DefaultMaxReconnectDelay = 60.0

	// Jitter band: 25% around small delays, shrinking to 10% at the cap.
	// Randomising the delay keeps many sessions from reconnecting in
	// lockstep after an upstream restart.
	jitterMax   = 0.25
	jitterRange = 0.15

	millisPerSecond = 1000.0
)

// Backoff computes randomised exponential reconnect delays.
//
// The nominal delay on attempt n is min(maxDelay, 2^n). Once the cap is
// reached a sticky flag short-circuits the exponent, so the counter can
// grow without overflow. The returned delay is drawn uniformly from a
// jitter band around the nominal value, at millisecond resolution.
//
// Safe for concurrent use, though each session owns its own instance.
type Backoff struct {
	mu         sync.Mutex
	maxDelay   float64
	attempts   int
	maxReached bool
}

// NewBackoff creates a backoff generator capped at maxDelay seconds.
// Values below the base are raised to the default cap.
func NewBackoff(maxDelay float64) *Backoff {
	if maxDelay <= backoffBase {
		maxDelay = DefaultMaxReconnectDelay
	}
	return &Backoff{maxDelay: maxDelay}
}

// Next advances the attempt counter and returns the next delay in seconds.
func (b *Backoff) Next() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	nominal := b.maxDelay
	if !b.maxReached {
		nominal = math.Pow(backoffBase, float64(b.attempts))
		if nominal >= b.maxDelay {
			nominal = b.maxDelay
			b.maxReached = true
		}
	}

	// Jitter shrinks from 25% at the shortest delay to 10% at the cap, so
	// long waits stay close to maxDelay while short retries desynchronise.
	jitter := jitterMax - jitterRange*(nominal-backoffBase)/(b.maxDelay-backoffBase)

	minMs := int64(nominal * (1 - jitter) * millisPerSecond)
	maxMs := int64(nominal * (1 + jitter) * millisPerSecond)

	delayMs := minMs
	if maxMs > minMs {
		delayMs = minMs + rand.Int63n(maxMs-minMs+1)
	}

	return float64(delayMs) / millisPerSecond
}

// Reset returns the generator to its initial state. Called after a
// successful upstream connection so the next outage starts from the
// shortest delay again.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
	b.maxReached = false
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
