package aggregate

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/npipeline/engine/errs"
	"github.com/npipeline/engine/pipe"
)

// Engine folds a keyed, event-timed stream into windowed output
// according to Window, per §4.7. Late events (observed after their
// window's watermark has already closed it) are dropped, or routed to
// DeadLetter when one is configured.
type Engine[In any, K comparable, State, Out any] struct {
	Window      Window
	KeyOf       func(In) K
	EventTime   func(In) time.Time
	MaxLateness time.Duration
	Zero        func() State
	Fold        func(state State, item In) State
	Finalize    func(state State) Out
	NodeID      string
	DeadLetter  errs.DeadLetterSink
}

type keyState[State any] struct {
	windows      map[time.Time]State // tumbling/sliding: keyed by window start
	watermark    time.Time
	watermarkSet bool
	order        int

	// session-only fields
	sessionState   State
	sessionStart   time.Time
	sessionEnd     time.Time
	sessionStarted bool
}

type emission[K comparable, Out any] struct {
	windowEnd time.Time
	order     int
	key       K
	out       Out
}

// emissionHeap orders pending emissions by (windowEnd, key-insertion
// order), the tie-break §4.7 requires.
type emissionHeap[K comparable, Out any] []emission[K, Out]

func (h emissionHeap[K, Out]) Len() int { return len(h) }
func (h emissionHeap[K, Out]) Less(i, j int) bool {
	if !h[i].windowEnd.Equal(h[j].windowEnd) {
		return h[i].windowEnd.Before(h[j].windowEnd)
	}
	return h[i].order < h[j].order
}
func (h emissionHeap[K, Out]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *emissionHeap[K, Out]) Push(x interface{}) {
	*h = append(*h, x.(emission[K, Out]))
}
func (h *emissionHeap[K, Out]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Apply drains in and returns the windowed, ordered aggregation
// result.
func (e Engine[In, K, State, Out]) Apply(ctx context.Context, in pipe.Pipe[In]) (pipe.Pipe[Out], error) {
	items, err := pipe.Collect(ctx, in)
	if err != nil {
		return nil, err
	}

	states := make(map[K]*keyState[State])
	keyOrder := 0
	pending := &emissionHeap[K, Out]{}

	keyFor := func(k K) *keyState[State] {
		ks, ok := states[k]
		if !ok {
			ks = &keyState[State]{windows: make(map[time.Time]State), order: keyOrder}
			keyOrder++
			states[k] = ks
		}
		return ks
	}

	switch e.Window.Kind {
	case SessionWindow:
		e.applySession(items, keyFor, pending)
	default:
		e.applyGrid(items, keyFor, pending)
	}

	out := make([]Out, 0, pending.Len())
	for pending.Len() > 0 {
		em := heap.Pop(pending).(emission[K, Out])
		out = append(out, em.out)
	}
	return pipe.FromSlice("aggregate", out), nil
}

func (e Engine[In, K, State, Out]) applyGrid(items []In, keyFor func(K) *keyState[State], pending *emissionHeap[K, Out]) {
	for _, item := range items {
		k := e.KeyOf(item)
		t := e.EventTime(item)
		ks := keyFor(k)

		for _, sp := range e.Window.spans(t) {
			if ks.watermarkSet && !sp.end.After(ks.watermark) {
				e.routeLate(item, k, sp.end)
				continue
			}
			state, ok := ks.windows[sp.start]
			if !ok {
				state = e.Zero()
			}
			ks.windows[sp.start] = e.Fold(state, item)
		}

		newWatermark := t.Add(-e.MaxLateness)
		if !ks.watermarkSet || newWatermark.After(ks.watermark) {
			ks.watermark = newWatermark
			ks.watermarkSet = true
		}

		for start, state := range ks.windows {
			end := start.Add(e.Window.Size)
			if !end.After(ks.watermark) {
				heap.Push(pending, emission[K, Out]{windowEnd: end, order: ks.order, key: k, out: e.Finalize(state)})
				delete(ks.windows, start)
			}
		}
	}

	for k, ks := range flattenKeys(keyFor, items, e.KeyOf) {
		for start, state := range ks.windows {
			end := start.Add(e.Window.Size)
			heap.Push(pending, emission[K, Out]{windowEnd: end, order: ks.order, key: k, out: e.Finalize(state)})
		}
	}
}

func (e Engine[In, K, State, Out]) applySession(items []In, keyFor func(K) *keyState[State], pending *emissionHeap[K, Out]) {
	for _, item := range items {
		k := e.KeyOf(item)
		t := e.EventTime(item)
		ks := keyFor(k)

		if ks.sessionStarted && t.Sub(ks.sessionEnd) > e.Window.Gap {
			heap.Push(pending, emission[K, Out]{windowEnd: ks.sessionEnd.Add(e.Window.Gap), order: ks.order, key: k, out: e.Finalize(ks.sessionState)})
			ks.sessionStarted = false
		}
		if !ks.sessionStarted {
			ks.sessionState = e.Zero()
			ks.sessionStart = t
			ks.sessionStarted = true
		}
		ks.sessionState = e.Fold(ks.sessionState, item)
		if t.After(ks.sessionEnd) {
			ks.sessionEnd = t
		}
	}

	for k, ks := range flattenKeys(keyFor, items, e.KeyOf) {
		if ks.sessionStarted {
			heap.Push(pending, emission[K, Out]{windowEnd: ks.sessionEnd.Add(e.Window.Gap), order: ks.order, key: k, out: e.Finalize(ks.sessionState)})
		}
	}
}

func (e Engine[In, K, State, Out]) routeLate(item In, k K, windowEnd time.Time) {
	if e.DeadLetter == nil {
		return
	}
	err := fmt.Errorf("aggregate: late event for key %v, window ending %v", k, windowEnd)
	_ = e.DeadLetter.Send(context.Background(), errs.NewDeadLetterRecord(item, err, e.NodeID, 1))
}

// flattenKeys re-derives the distinct (key -> keyState) set already
// built up in the keyFor closure's backing map, so the EOF flush pass
// can walk every key exactly once without keyFor allocating new state
// for keys it has already seen.
func flattenKeys[In any, K comparable, State any](keyFor func(K) *keyState[State], items []In, keyOf func(In) K) map[K]*keyState[State] {
	seen := make(map[K]*keyState[State])
	for _, item := range items {
		k := keyOf(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = keyFor(k)
	}
	return seen
}
