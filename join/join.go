// Package join implements the keyed join engine of §4.6: per-key
// waiting lists, Cartesian product matching within a key, and the four
// end-of-input semantics (Inner/LeftOuter/RightOuter/FullOuter).
package join

import (
	"context"

	"github.com/npipeline/engine/pipe"
)

// Kind selects a keyed join's end-of-input semantics.
type Kind int

const (
	// Inner discards unmatched items from either side.
	Inner Kind = iota
	// LeftOuter emits CombineLeftOnly for unmatched left items.
	LeftOuter
	// RightOuter emits CombineRightOnly for unmatched right items.
	RightOuter
	// FullOuter emits both.
	FullOuter
)

func (k Kind) String() string {
	switch k {
	case Inner:
		return "inner"
	case LeftOuter:
		return "left-outer"
	case RightOuter:
		return "right-outer"
	case FullOuter:
		return "full-outer"
	default:
		return "unknown"
	}
}

// Engine implements a keyed join over two typed streams. Apply
// collects both inputs in full, parks every left item on its key's
// waiting list, and then matches each right item against every left
// item waiting under the same key, producing the full Cartesian
// product per key regardless of arrival interleaving.
type Engine[K comparable, L, R, Out any] struct {
	Kind             Kind
	KeyLeft          func(L) K
	KeyRight         func(R) K
	Combine          func(L, R) Out
	CombineLeftOnly  func(L) Out
	CombineRightOnly func(R) Out
}

type leftEntry[L any] struct {
	item    L
	matched bool
}

type rightEntry[R any] struct {
	item    R
	matched bool
}

// Apply drains left and right (both finite, per §4.6's model) and
// produces every matched combination plus whatever residuals Kind
// calls for.
func (e Engine[K, L, R, Out]) Apply(ctx context.Context, left pipe.Pipe[L], right pipe.Pipe[R]) (pipe.Pipe[Out], error) {
	leftItems, err := pipe.Collect(ctx, left)
	if err != nil {
		return nil, err
	}
	rightItems, err := pipe.Collect(ctx, right)
	if err != nil {
		return nil, err
	}

	leftWaiting := make(map[K][]*leftEntry[L])
	var leftOrder []*leftEntry[L]
	var rightOrder []*rightEntry[R]
	var out []Out

	// leftItems is drained to completion before rightItems is
	// processed below, so every key's leftWaiting list is already
	// complete by the time the right-side loop runs: matching there
	// against leftWaiting[k] already yields the full Cartesian
	// product for the key, with no need to also match on the way in.
	for _, l := range leftItems {
		k := e.KeyLeft(l)
		entry := &leftEntry[L]{item: l}
		leftWaiting[k] = append(leftWaiting[k], entry)
		leftOrder = append(leftOrder, entry)
	}
	for _, r := range rightItems {
		k := e.KeyRight(r)
		entry := &rightEntry[R]{item: r}
		for _, l := range leftWaiting[k] {
			out = append(out, e.Combine(l.item, r))
			l.matched = true
			entry.matched = true
		}
		rightOrder = append(rightOrder, entry)
	}

	// Residuals are emitted in arrival order (leftOrder/rightOrder),
	// not by ranging the per-key maps above, so that re-running the
	// same input always yields identical output regardless of Go's
	// randomized map iteration order across keys.
	if e.Kind == LeftOuter || e.Kind == FullOuter {
		for _, entry := range leftOrder {
			if !entry.matched {
				out = append(out, e.CombineLeftOnly(entry.item))
			}
		}
	}
	if e.Kind == RightOuter || e.Kind == FullOuter {
		for _, entry := range rightOrder {
			if !entry.matched {
				out = append(out, e.CombineRightOnly(entry.item))
			}
		}
	}

	return pipe.FromSlice("join", out), nil
}
