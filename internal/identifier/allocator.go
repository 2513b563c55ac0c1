// Package identifier hands out short public numbers (abstract numbers,
// registration numbers). Uniqueness comes from the storage unique index:
// the allocator writes a random candidate and retries when the write
// reports a collision. It never checks existence before writing.
package identifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"confdesk/internal/model"
)

// Format describes a fixed-length numeric identifier with an optional prefix.
type Format struct {
	Prefix string
	Digits int
}

var (
	AbstractNumber     = Format{Digits: 6}
	RegistrationNumber = Format{Prefix: "REG", Digits: 6}
)

// Candidate draws a number in [10^(d-1), 10^d) so it never starts with zero.
func (f Format) Candidate(rng func(n int64) int64) string {
	lo := pow10(f.Digits - 1)
	return f.Prefix + strconv.FormatInt(lo+rng(pow10(f.Digits)-lo), 10)
}

// Match reports whether s has the shape of this format.
func (f Format) Match(s string) bool {
	rest, ok := strings.CutPrefix(s, f.Prefix)
	if !ok || len(rest) != f.Digits || rest[0] == '0' {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func pow10(n int) int64 {
	out := int64(1)
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}

// InsertFunc persists id. It must return model.ErrConflict when the storage
// unique index rejects the value.
type InsertFunc func(ctx context.Context, id string) error

type Allocator struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	rng         func(n int64) int64
	sleep       func(ctx context.Context, d time.Duration) error
}

const (
	defaultMaxAttempts = 12
	defaultBaseDelay   = 5 * time.Millisecond
	defaultMaxDelay    = 200 * time.Millisecond
)

type Option func(*Allocator)

func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

func WithBackoff(base, max time.Duration) Option {
	return func(a *Allocator) {
		if base > 0 && max >= base {
			a.baseDelay = base
			a.maxDelay = max
		}
	}
}

// WithRand replaces the random source, mostly for tests.
func WithRand(rng func(n int64) int64) Option {
	return func(a *Allocator) {
		if rng != nil {
			a.rng = rng
		}
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Allocator) {
		if sleep != nil {
			a.sleep = sleep
		}
	}
}

func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		rng:         rand.Int64N,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate generates candidates of format f and hands each to insert until
// one is accepted. Collisions back off exponentially up to the cap; after
// maxAttempts collisions it fails with model.ErrIdentifierExhausted.
func (a *Allocator) Allocate(ctx context.Context, f Format, insert InsertFunc) (string, error) {
	if f.Digits <= 0 || f.Digits > 18 {
		return "", fmt.Errorf("identifier: invalid digit count %d", f.Digits)
	}
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		id := f.Candidate(a.rng)
		err := insert(ctx, id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return "", err
		}
		if attempt == a.maxAttempts {
			break
		}
		if err := a.sleep(ctx, a.Backoff(attempt)); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w after %d attempts", model.ErrIdentifierExhausted, a.maxAttempts)
}

// Backoff is the wait after the given failed attempt (1-based).
func (a *Allocator) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := a.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= a.maxDelay {
			return a.maxDelay
		}
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
