package strategy

import (
	"math/rand"
	"sync"
	"time"

	cenkaltibackoff "github.com/cenkalti/backoff/v4"
)

// BackoffKind selects the shape of the un-jittered delay curve.
type BackoffKind int

const (
	// FixedBackoff returns the same base delay for every attempt.
	FixedBackoff BackoffKind = iota
	// LinearBackoff grows delay linearly with the attempt number.
	LinearBackoff
	// ExponentialBackoff grows delay geometrically, capped at MaxDelay.
	ExponentialBackoff
)

// Backoff computes an un-jittered delay from an attempt number
// (1-based) and a base/multiplier/cap.
type Backoff struct {
	Kind       BackoffKind
	Base       time.Duration
	Multiplier float64 // used by Linear (per-step increment factor) and Exponential (growth factor)
	MaxDelay   time.Duration
}

// at returns the un-jittered delay for the given attempt (1-based).
func (b Backoff) at(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch b.Kind {
	case FixedBackoff:
		d = b.Base
	case LinearBackoff:
		mult := b.Multiplier
		if mult <= 0 {
			mult = 1
		}
		d = time.Duration(float64(b.Base) * mult * float64(attempt))
	case ExponentialBackoff:
		d = exponentialDelay(b.Base, b.Multiplier, attempt)
	default:
		d = b.Base
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

// exponentialDelay computes base*multiplier^(attempt-1). It configures
// a cenkalti/backoff ExponentialBackOff (RandomizationFactor zeroed —
// jitter is applied separately, by this package's Jitter families) but
// computes the curve with the loop below, not through NextBackOff.
func exponentialDelay(base time.Duration, multiplier float64, attempt int) time.Duration {
	if multiplier <= 1 {
		multiplier = 2
	}
	eb := cenkaltibackoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.Multiplier = multiplier
	eb.RandomizationFactor = 0
	eb.MaxInterval = 0 // capping handled by Backoff.MaxDelay above
	eb.Reset()

	d := eb.InitialInterval
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(d) * eb.Multiplier)
		if next < d { // overflow guard
			next = d
		}
		d = next
	}
	return d
}

// JitterKind selects how a computed base delay is randomized.
type JitterKind int

const (
	// NoJitter returns the base delay unchanged.
	NoJitter JitterKind = iota
	// FullJitter draws uniformly from [0, base).
	FullJitter
	// EqualJitter returns base/2 + uniform[0, base/2).
	EqualJitter
	// DecorrelatedJitter draws uniformly from [base, min(cap, prev*multiplier)),
	// seeded by base on the first call and evolving statefully per
	// DelayStrategy instance.
	DecorrelatedJitter
)

// DelayStrategy composes a Backoff with a Jitter family to produce
// retry delays. Decorrelated jitter is stateful and must be safe for
// concurrent use (an item retry and a node restart can race on the
// same pipeline context).
type DelayStrategy struct {
	Backoff Backoff
	Jitter  JitterKind
	Cap     time.Duration // used only by DecorrelatedJitter; falls back to Backoff.MaxDelay

	mu   sync.Mutex
	rng  *rand.Rand
	prev time.Duration
}

// NewDelayStrategy builds a DelayStrategy with a private RNG source.
// Passing a fixed seed makes delays deterministic for tests.
func NewDelayStrategy(backoff Backoff, jitter JitterKind, seed int64) *DelayStrategy {
	return &DelayStrategy{
		Backoff: backoff,
		Jitter:  jitter,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Delay returns the delay to wait before retry number attempt
// (1-based).
func (d *DelayStrategy) Delay(attempt int) time.Duration {
	base := d.Backoff.at(attempt)
	switch d.Jitter {
	case NoJitter:
		return base
	case FullJitter:
		return d.uniform(0, base)
	case EqualJitter:
		half := base / 2
		return half + d.uniform(0, base-half)
	case DecorrelatedJitter:
		return d.decorrelated(base)
	default:
		return base
	}
}

func (d *DelayStrategy) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	span := int64(hi - lo)
	return lo + time.Duration(d.rng.Int63n(span))
}

func (d *DelayStrategy) decorrelated(base time.Duration) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	cap := d.Cap
	if cap <= 0 {
		cap = d.Backoff.MaxDelay
	}
	prev := d.prev
	if prev <= 0 {
		prev = base
	}
	upper := time.Duration(float64(prev) * maxFloat(d.Backoff.Multiplier, 3))
	if cap > 0 && upper > cap {
		upper = cap
	}
	if upper <= base {
		upper = base + 1
	}
	span := int64(upper - base)
	next := base + time.Duration(d.rng.Int63n(span))
	d.prev = next
	return next
}

func maxFloat(a, fallback float64) float64 {
	if a <= 1 {
		return fallback
	}
	return a
}
