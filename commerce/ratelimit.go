package commerce

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Priority orders requests competing for the rate limit.
type Priority int

const (
	// Interactive requests are made on behalf of a waiting shopper.
	Interactive Priority = iota
	// Background requests warm the cache and yield to interactive ones.
	Background
)

func (p Priority) String() string {
	if p == Background {
		return "background"
	}
	return "interactive"
}

type priorityKey struct{}

// WithPriority marks every request made with ctx as p.
func WithPriority(ctx context.Context, p Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, p)
}

// PriorityFrom returns the priority stored in ctx, Interactive by default.
func PriorityFrom(ctx context.Context) Priority {
	if p, ok := ctx.Value(priorityKey{}).(Priority); ok {
		return p
	}
	return Interactive
}

// RateLimiter is a token bucket with an interactive lane. Background
// callers only take a token while no interactive caller is waiting and
// Reserve tokens would remain afterwards.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	reserve    float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	waiting    int // interactive callers blocked in Wait
	now        func() time.Time
}

// RateLimitConfig configures the rate limiter.
type RateLimitConfig struct {
	RequestsPerMinute int // Maximum requests per minute (default: 120)
	BurstSize         int // Maximum burst size (default: same as RPM)
	Reserve           int // Tokens background requests leave untouched (default: burst/10)
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rpm := float64(cfg.RequestsPerMinute)
	if rpm <= 0 {
		rpm = 120
	}

	burst := float64(cfg.BurstSize)
	if burst <= 0 {
		burst = rpm
	}

	reserve := float64(cfg.Reserve)
	if cfg.Reserve <= 0 {
		reserve = float64(int(burst / 10))
	}
	if reserve >= burst {
		reserve = burst - 1
	}

	return &RateLimiter{
		tokens:     burst,
		maxTokens:  burst,
		reserve:    reserve,
		refillRate: rpm / 60.0,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Wait blocks until a token is available for p or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, p Priority) error {
	if r.TryAcquire(p) {
		return nil
	}

	if p == Interactive {
		r.mu.Lock()
		r.waiting++
		r.mu.Unlock()
		defer func() {
			r.mu.Lock()
			r.waiting--
			r.mu.Unlock()
		}()
	}

	for {
		timer := time.NewTimer(r.retryIn(p))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if r.TryAcquire(p) {
			return nil
		}
	}
}

// TryAcquire takes a token for p without blocking.
func (r *RateLimiter) TryAcquire(p Priority) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	need := 1.0
	if p == Background {
		if r.waiting > 0 {
			return false
		}
		need += r.reserve
	}
	if r.tokens < need {
		return false
	}
	r.tokens--
	return true
}

// retryIn estimates how long until p could take a token.
func (r *RateLimiter) retryIn(p Priority) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	need := 1.0
	if p == Background {
		need += r.reserve
	}
	wait := time.Duration((need - r.tokens) / r.refillRate * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// refill adds tokens based on elapsed time (must be called with lock held).
func (r *RateLimiter) refill() {
	now := r.now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now

	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
}

// Available returns the current number of available tokens.
func (r *RateLimiter) Available() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// RateLimitedSource wraps a Source with rate limiting. Requests whose
// context is marked Background (the prefetcher's) wait behind interactive
// ones, so warming never floods the API ahead of interactive traffic.
type RateLimitedSource struct {
	source  Source
	limiter *RateLimiter
}

// NewRateLimitedSource creates a new rate-limited source.
func NewRateLimitedSource(source Source, cfg RateLimitConfig) *RateLimitedSource {
	return &RateLimitedSource{
		source:  source,
		limiter: NewRateLimiter(cfg),
	}
}

// Fetch implements Source with rate limiting.
func (s *RateLimitedSource) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	p := PriorityFrom(ctx)
	if err := s.limiter.Wait(ctx, p); err != nil {
		return nil, &Error{
			Message: p.String() + " rate limit wait cancelled",
			Cause:   err,
		}
	}

	return s.source.Fetch(ctx, req)
}

// Limiter returns the underlying rate limiter for inspection.
func (s *RateLimitedSource) Limiter() *RateLimiter {
	return s.limiter
}
