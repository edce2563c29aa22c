// internal/workers/integration/government-gateway/breaker.go
package governmentgateway

import (
	"sync"
	"time"

	"fleet-compliance/internal/models"
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker opens after threshold consecutive failures. After cooldown one
// probe call is let through; its outcome closes or reopens the circuit.
type circuitBreaker struct {
	mu           sync.Mutex
	state        circuitState
	failureCount int
	threshold    int
	cooldown     time.Duration
	openedAt     time.Time
	probing      bool
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may be issued at now.
func (c *circuitBreaker) Allow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case circuitOpen:
		if now.Sub(c.openedAt) < c.cooldown {
			return false
		}
		c.state = circuitHalfOpen
		c.probing = true
		return true
	case circuitHalfOpen:
		if c.probing {
			return false
		}
		c.probing = true
		return true
	}
	return true
}

func (c *circuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = circuitClosed
	c.failureCount = 0
	c.probing = false
}

func (c *circuitBreaker) RecordFailure(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	c.probing = false
	if c.state == circuitHalfOpen || c.failureCount >= c.threshold {
		c.state = circuitOpen
		c.openedAt = now
	}
}

// Health maps the breaker onto the agency health surface.
func (c *circuitBreaker) Health(now time.Time) models.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == circuitOpen && now.Sub(c.openedAt) < c.cooldown:
		return models.HealthDown
	case c.state != circuitClosed || c.failureCount > 0:
		return models.HealthDegraded
	}
	return models.HealthOperational
}

// Cancel returns an unused half-open probe slot.
func (c *circuitBreaker) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probing = false
}
