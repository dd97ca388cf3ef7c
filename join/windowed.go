package join

import (
	"context"
	"time"

	"github.com/npipeline/engine/pipe"
)

type timedLeftEntry[L any] struct {
	item    L
	at      time.Time
	matched bool
}

type timedRightEntry[R any] struct {
	item    R
	at      time.Time
	matched bool
}

// Windowed is the time-bounded variant of Engine: two items only match
// when |tL - tR| <= WindowSize, and each side's waiting list is purged
// of entries older than WindowSize relative to the current
// high-watermark (the latest event time observed on either side so
// far), per §4.6.
type Windowed[K comparable, L, R, Out any] struct {
	Engine[K, L, R, Out]
	KeyTimeLeft  func(L) time.Time
	KeyTimeRight func(R) time.Time
	WindowSize   time.Duration
}

// taggedItem is the merge-by-time unit used internally to process both
// sides in a single time-ordered pass.
type taggedItem struct {
	isLeft bool
	index  int
	at     time.Time
}

// Apply drains both sides, merges them into non-decreasing event-time
// order, and streams them through the windowed match-and-purge
// algorithm in a single pass.
func (w Windowed[K, L, R, Out]) Apply(ctx context.Context, left pipe.Pipe[L], right pipe.Pipe[R]) (pipe.Pipe[Out], error) {
	leftItems, err := pipe.Collect(ctx, left)
	if err != nil {
		return nil, err
	}
	rightItems, err := pipe.Collect(ctx, right)
	if err != nil {
		return nil, err
	}

	merged := make([]taggedItem, 0, len(leftItems)+len(rightItems))
	for i, l := range leftItems {
		merged = append(merged, taggedItem{isLeft: true, index: i, at: w.KeyTimeLeft(l)})
	}
	for i, r := range rightItems {
		merged = append(merged, taggedItem{isLeft: false, index: i, at: w.KeyTimeRight(r)})
	}
	sortTaggedByTime(merged)

	leftWaiting := make(map[K][]*timedLeftEntry[L])
	rightWaiting := make(map[K][]*timedRightEntry[R])
	var out []Out
	var highWatermark time.Time
	watermarkSet := false

	advance := func(t time.Time) {
		if !watermarkSet || t.After(highWatermark) {
			highWatermark = t
			watermarkSet = true
		}
	}
	withinWindow := func(a, b time.Time) bool {
		d := a.Sub(b)
		if d < 0 {
			d = -d
		}
		return d <= w.WindowSize
	}
	purgeLeft := func() {
		for k, entries := range leftWaiting {
			kept := entries[:0]
			for _, e := range entries {
				if highWatermark.Sub(e.at) <= w.WindowSize {
					kept = append(kept, e)
				}
			}
			leftWaiting[k] = kept
		}
	}
	purgeRight := func() {
		for k, entries := range rightWaiting {
			kept := entries[:0]
			for _, e := range entries {
				if highWatermark.Sub(e.at) <= w.WindowSize {
					kept = append(kept, e)
				}
			}
			rightWaiting[k] = kept
		}
	}

	for _, ti := range merged {
		if ti.isLeft {
			l := leftItems[ti.index]
			k := w.KeyLeft(l)
			t := ti.at
			advance(t)
			entry := &timedLeftEntry[L]{item: l, at: t}
			for _, r := range rightWaiting[k] {
				if withinWindow(t, r.at) {
					out = append(out, w.Combine(l, r.item))
					r.matched = true
					entry.matched = true
				}
			}
			leftWaiting[k] = append(leftWaiting[k], entry)
			purgeRight()
		} else {
			r := rightItems[ti.index]
			k := w.KeyRight(r)
			t := ti.at
			advance(t)
			entry := &timedRightEntry[R]{item: r, at: t}
			for _, l := range leftWaiting[k] {
				if withinWindow(t, l.at) {
					out = append(out, w.Combine(l.item, r))
					l.matched = true
					entry.matched = true
				}
			}
			rightWaiting[k] = append(rightWaiting[k], entry)
			purgeLeft()
		}
	}

	if w.Kind == LeftOuter || w.Kind == FullOuter {
		for _, entries := range leftWaiting {
			for _, e := range entries {
				if !e.matched {
					out = append(out, w.CombineLeftOnly(e.item))
				}
			}
		}
	}
	if w.Kind == RightOuter || w.Kind == FullOuter {
		for _, entries := range rightWaiting {
			for _, e := range entries {
				if !e.matched {
					out = append(out, w.CombineRightOnly(e.item))
				}
			}
		}
	}

	return pipe.FromSlice("join/windowed", out), nil
}

// sortTaggedByTime is a small insertion sort: merged is built from two
// already time-ordered sequences, so the input is nearly sorted and
// this stays linear in practice while remaining stable (ties keep
// their original relative order, left before right on exact ties).
func sortTaggedByTime(items []taggedItem) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].at.Before(items[j-1].at); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
