package sidechannel

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes the delay before retry attempt n (1-based) using
// exponential growth with jitter so concurrent senders do not retry in
// lockstep.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    500 * time.Millisecond,
		Max:        10 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

func (b Backoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := b.Initial
	if initial == 0 {
		initial = time.Second
	}
	max := b.Max
	if max == 0 {
		max = 30 * time.Second
	}
	multiplier := b.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if b.Jitter > 0 {
		interval *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	if interval > float64(max) {
		interval = float64(max)
	}
	return time.Duration(interval)
}

// breaker stops hammering a side-channel endpoint that keeps failing.
// After failureThreshold consecutive failures it rejects sends until
// recoveryTimeout has passed, then lets a probe through.
type breaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration

	failures    int
	open        bool
	lastFailure time.Time
}

func newBreaker(failureThreshold int, recoveryTimeout time.Duration) *breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &breaker{failureThreshold: failureThreshold, recoveryTimeout: recoveryTimeout}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	// Let a probe through after the cooldown.
	return time.Since(b.lastFailure) > b.recoveryTimeout
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.open = false
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()
	if b.failures >= b.failureThreshold {
		b.open = true
	}
}
