// Package circuit provides a consecutive-failure breaker for remote venue
// calls.
package circuit

import (
	"sync"
	"time"

	"levex/internal/logger"
)

// Breaker guards one upstream. It trips after threshold straight failures,
// rejects calls for cooldown, then admits a single trial call; the trial's
// result decides between closing again and another full cooldown.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	trialing bool
}

func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown}
}

func (b *Breaker) open() bool {
	return !b.openedAt.IsZero()
}

// Allow reports whether the next call may proceed. While open it admits
// exactly one trial call per elapsed cooldown.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open() {
		return true
	}
	if b.trialing || time.Since(b.openedAt) < b.cooldown {
		return false
	}
	b.trialing = true
	logger.Warnf("circuit %s: cooldown elapsed, admitting trial call", b.name)
	return true
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open() {
		logger.Infof("circuit %s: closed after successful trial call (was open %s)",
			b.name, time.Since(b.openedAt).Round(time.Second))
	}
	b.failures = 0
	b.openedAt = time.Time{}
	b.trialing = false
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.trialing {
		// Trial failed, restart the cooldown from now.
		b.openedAt = time.Now()
		b.trialing = false
		logger.Warnf("circuit %s: trial call failed, reopening for %s", b.name, b.cooldown)
		return
	}
	b.failures++
	if !b.open() && b.failures >= b.threshold {
		b.openedAt = time.Now()
		logger.Warnf("circuit %s: open after %d consecutive failures, cooldown %s",
			b.name, b.failures, b.cooldown)
	}
}
