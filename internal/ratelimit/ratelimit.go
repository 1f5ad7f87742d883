// Package ratelimit implements fixed-window request counting per caller
// identity. Counters live behind the CounterStore interface so a single
// process can use the in-memory store while multi-instance deployments
// share a Redis backend.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Class names a limiter configuration. Each class carries its own maximum
// count and window; counters for different classes are independent even for
// the same identity.
type Class string

const (
	// ClassAdmin covers the administrative API surface.
	ClassAdmin Class = "admin"
	// ClassAPI covers API-key authenticated routes.
	ClassAPI Class = "api"
	// ClassPublic covers unauthenticated routes, counted per source IP.
	ClassPublic Class = "public"
)

// ClassConfig is the quota for one limiter class.
type ClassConfig struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultClasses returns the stock quotas.
func DefaultClasses() map[Class]ClassConfig {
	return map[Class]ClassConfig{
		ClassAdmin:  {MaxRequests: 30, Window: time.Minute},
		ClassAPI:    {MaxRequests: 100, Window: time.Minute},
		ClassPublic: {MaxRequests: 20, Window: time.Minute},
	}
}

// CounterStore atomically counts requests per key within a window. The
// increment and the limit comparison built on it must not allow two
// concurrent requests to both observe a below-limit count and pass a true
// limit, so implementations serialize the increment per key.
type CounterStore interface {
	// Increment bumps the counter for key, starting a new window if none
	// is active, and returns the post-increment count along with the time
	// remaining until the window resets.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

// Decision is the outcome of a limiter check. A rejection is a normal,
// expected outcome, not an error.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter checks request counts against per-class quotas.
type Limiter struct {
	store   CounterStore
	classes map[Class]ClassConfig
	logger  *slog.Logger
}

// New creates a Limiter over the given counter store. Pass nil classes to
// use DefaultClasses.
func New(store CounterStore, classes map[Class]ClassConfig, logger *slog.Logger) *Limiter {
	if classes == nil {
		classes = DefaultClasses()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, classes: classes, logger: logger}
}

// Check counts one request for (class, identity) and decides whether it may
// proceed. Identities in different classes never share a counter. An
// unconfigured class allows everything.
func (l *Limiter) Check(ctx context.Context, class Class, identity string) (Decision, error) {
	cfg, ok := l.classes[class]
	if !ok {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	key := string(class) + ":" + identity
	count, resetIn, err := l.store.Increment(ctx, key, cfg.Window)
	if err != nil {
		l.logger.Error("rate limit counter store unavailable",
			"class", string(class),
			"error", err,
		)
		return Decision{}, err
	}

	if count > int64(cfg.MaxRequests) {
		return Decision{
			Allowed:    false,
			Limit:      cfg.MaxRequests,
			Remaining:  0,
			RetryAfter: resetIn,
		}, nil
	}

	return Decision{
		Allowed:    true,
		Limit:      cfg.MaxRequests,
		Remaining:  cfg.MaxRequests - int(count),
		RetryAfter: resetIn,
	}, nil
}
