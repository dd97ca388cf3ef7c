// Package aggregate implements the windowed aggregation engine of
// §4.7: tumbling/sliding/session windows keyed by event time, a
// per-key watermark advancing the close point, late-event handling,
// and ordered (window-end, then key-insertion) emission.
package aggregate

import "time"

// WindowKind selects which window family a Window value belongs to.
type WindowKind int

const (
	TumblingWindow WindowKind = iota
	SlidingWindow
	SessionWindow
)

// Window describes the window family and its parameters. Construct
// one via Tumbling/Sliding/Session rather than the struct literal.
type Window struct {
	Kind WindowKind
	Size time.Duration // Tumbling/Sliding window duration
	Step time.Duration // Sliding only: interval between window starts
	Gap  time.Duration // Session only: inactivity gap that closes a session
}

// Tumbling builds non-overlapping windows of duration d, anchored at
// the epoch.
func Tumbling(d time.Duration) Window { return Window{Kind: TumblingWindow, Size: d} }

// Sliding builds overlapping windows of duration d, a new one starting
// every step.
func Sliding(d, step time.Duration) Window { return Window{Kind: SlidingWindow, Size: d, Step: step} }

// Session builds windows that grow while the inter-event gap stays
// within gap, closing after gap of inactivity.
func Session(gap time.Duration) Window { return Window{Kind: SessionWindow, Gap: gap} }

// spans returns the tumbling/sliding window(s) that t belongs to, as
// [start, end) half-open intervals. Session windows are handled
// separately since membership depends on neighboring events, not a
// fixed grid.
func (w Window) spans(t time.Time) []span {
	switch w.Kind {
	case TumblingWindow:
		start := t.Truncate(w.Size)
		return []span{{start: start, end: start.Add(w.Size)}}
	case SlidingWindow:
		if w.Step <= 0 {
			return nil
		}
		var out []span
		// The earliest window start that could still cover t.
		first := t.Add(-w.Size).Truncate(w.Step)
		for start := first; !start.After(t); start = start.Add(w.Step) {
			end := start.Add(w.Size)
			if t.Equal(start) || (t.After(start) && t.Before(end)) {
				out = append(out, span{start: start, end: end})
			}
		}
		return out
	default:
		return nil
	}
}

type span struct {
	start, end time.Time
}
