package transport

import (
	"log/slog"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the per-MMSC-host circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Successes in half-open before closing
	Timeout          time.Duration // Open duration before probing again
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// BreakerSet holds one breaker per MMSC host.
type BreakerSet struct {
	config   BreakerConfig
	breakers cmap.ConcurrentMap[string, *hostBreaker]
}

// NewBreakerSet creates a set with the given tuning.
func NewBreakerSet(config BreakerConfig) *BreakerSet {
	return &BreakerSet{
		config:   config.withDefaults(),
		breakers: cmap.New[*hostBreaker](),
	}
}

func (s *BreakerSet) breaker(host string) *hostBreaker {
	if b, ok := s.breakers.Get(host); ok {
		return b
	}
	b := &hostBreaker{host: host, config: s.config, lastStateChange: time.Now()}
	if !s.breakers.SetIfAbsent(host, b) {
		b, _ = s.breakers.Get(host)
	}
	return b
}

// Allow reports whether an exchange against the host may proceed.
func (s *BreakerSet) Allow(host string) bool { return s.breaker(host).allow() }

// RecordSuccess feeds a successful exchange into the host's breaker.
func (s *BreakerSet) RecordSuccess(host string) { s.breaker(host).recordSuccess() }

// RecordFailure feeds a failed exchange into the host's breaker.
func (s *BreakerSet) RecordFailure(host string) { s.breaker(host).recordFailure() }

// State returns the host's breaker state.
func (s *BreakerSet) State(host string) BreakerState {
	b := s.breaker(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

type hostBreaker struct {
	mu              sync.Mutex
	host            string
	config          BreakerConfig
	state           BreakerState
	failureCount    int
	successCount    int
	lastStateChange time.Time
}

func (b *hostBreaker) transitionLocked(to BreakerState) {
	slog.Info("mmsc_breaker_state_change",
		slog.String("host", b.host),
		slog.String("from_state", b.state.String()),
		slog.String("to_state", to.String()),
		slog.Int("failure_count", b.failureCount),
		slog.Int("success_count", b.successCount),
	)
	b.state = to
	b.lastStateChange = time.Now()
}

func (b *hostBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if time.Since(b.lastStateChange) >= b.config.Timeout {
			b.successCount = 0
			b.failureCount = 0
			b.transitionLocked(BreakerHalfOpen)
			return true
		}
		return false
	}
	return true
}

func (b *hostBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.failureCount = 0
			b.successCount = 0
			b.transitionLocked(BreakerClosed)
		}
	case BreakerClosed:
		b.failureCount = 0
	}
}

func (b *hostBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.failureCount = 0
		b.successCount = 0
		b.transitionLocked(BreakerOpen)
	case BreakerClosed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.transitionLocked(BreakerOpen)
		}
	}
}
