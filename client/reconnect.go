package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultReconnectBase is the delay before the first reconnect attempt.
	DefaultReconnectBase = 1000 * time.Millisecond

	// DefaultReconnectAttempts is the reconnect ceiling. Once exhausted the
	// client emits a terminal connection-failed event and stays closed until
	// Connect is called again.
	DefaultReconnectAttempts = 3
)

// reconnectPolicy produces the delay schedule for stream recovery:
// base * 2^(attempt-1), up to a fixed attempt ceiling. The caller is
// responsible for locking; the policy itself holds no lock.
type reconnectPolicy struct {
	maxAttempts int
	attempts    int
	backoff     *backoff.ExponentialBackOff
}

func newReconnectPolicy(base time.Duration, maxAttempts int) *reconnectPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	// The schedule is deterministic: no jitter, no interval cap, no elapsed
	// cutoff. The attempt ceiling is the only stop condition.
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(1<<uint(maxAttempts)) * base
	b.MaxElapsedTime = 0
	b.Reset()
	return &reconnectPolicy{
		maxAttempts: maxAttempts,
		backoff:     b,
	}
}

// next consumes one attempt. It returns the delay to wait and the attempt
// number (starting at 1), or ok=false when the ceiling is exhausted.
func (p *reconnectPolicy) next() (delay time.Duration, attempt int, ok bool) {
	if p.attempts >= p.maxAttempts {
		return 0, 0, false
	}
	p.attempts++
	return p.backoff.NextBackOff(), p.attempts, true
}

// reset clears the attempt counter after a successful connection.
func (p *reconnectPolicy) reset() {
	p.attempts = 0
	p.backoff.Reset()
}
