package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/npipeline/engine/errs"
	"github.com/npipeline/engine/pipe"
)

type reading struct {
	Sensor string
	At     time.Time
	Value  int
}

type sumState struct {
	count int
	total int
}

func TestTumblingWindowSumsPerKeyAndClosesInOrder(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	items := []reading{
		{Sensor: "a", At: base, Value: 1},
		{Sensor: "b", At: base.Add(1 * time.Second), Value: 10},
		{Sensor: "a", At: base.Add(2 * time.Second), Value: 2},
		// advances both keys' watermarks past the first 10s window
		{Sensor: "a", At: base.Add(11 * time.Second), Value: 100},
		{Sensor: "b", At: base.Add(12 * time.Second), Value: 100},
	}
	in := pipe.FromSlice("readings", items)

	engine := Engine[reading, string, sumState, int]{
		Window:      Tumbling(10 * time.Second),
		KeyOf:       func(r reading) string { return r.Sensor },
		EventTime:   func(r reading) time.Time { return r.At },
		MaxLateness: 0,
		Zero:        func() sumState { return sumState{} },
		Fold: func(s sumState, r reading) sumState {
			return sumState{count: s.count + 1, total: s.total + r.Value}
		},
		Finalize: func(s sumState) int { return s.total },
	}

	out, err := engine.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	got, err := pipe.Collect(context.Background(), out)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	// First window (a:1+2=3, b:10) closes before the second window's
	// totals (a:100, b:100) are flushed at EOF.
	want := []int{3, 10, 100, 100}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestTumblingWindowRoutesLateEventToDeadLetter(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	items := []reading{
		{Sensor: "a", At: base, Value: 1},
		// advances watermark well past window 1 [0,10s)
		{Sensor: "a", At: base.Add(25 * time.Second), Value: 2},
		// falls back into the already-closed first window: late
		{Sensor: "a", At: base.Add(3 * time.Second), Value: 99},
	}
	in := pipe.FromSlice("readings", items)
	sink := errs.NewDefaultDeadLetterSink()

	engine := Engine[reading, string, sumState, int]{
		Window:      Tumbling(10 * time.Second),
		KeyOf:       func(r reading) string { return r.Sensor },
		EventTime:   func(r reading) time.Time { return r.At },
		MaxLateness: 0,
		Zero:        func() sumState { return sumState{} },
		Fold: func(s sumState, r reading) sumState {
			return sumState{count: s.count + 1, total: s.total + r.Value}
		},
		Finalize:   func(s sumState) int { return s.total },
		NodeID:     "sensor-sum",
		DeadLetter: sink,
	}

	out, err := engine.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	got, err := pipe.Collect(context.Background(), out)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 windows emitted, got %v", got)
	}
	if got[0] != 1 {
		t.Fatalf("first window should only contain the on-time event: got %v", got)
	}
	records := sink.Records()
	if len(records) != 1 {
		t.Fatalf("expected exactly one dead-lettered late event, got %d", len(records))
	}
	if records[0].NodeID != "sensor-sum" {
		t.Fatalf("dead letter record has wrong node id: %q", records[0].NodeID)
	}
}

func TestSlidingWindowEmitsOverlappingTotals(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	items := []reading{
		{Sensor: "a", At: base, Value: 1},
		{Sensor: "a", At: base.Add(3 * time.Second), Value: 2},
		{Sensor: "a", At: base.Add(20 * time.Second), Value: 100}, // flush trigger
	}
	in := pipe.FromSlice("readings", items)

	engine := Engine[reading, string, sumState, int]{
		Window:    Sliding(10*time.Second, 5*time.Second),
		KeyOf:     func(r reading) string { return r.Sensor },
		EventTime: func(r reading) time.Time { return r.At },
		Zero:      func() sumState { return sumState{} },
		Fold: func(s sumState, r reading) sumState {
			return sumState{count: s.count + 1, total: s.total + r.Value}
		},
		Finalize: func(s sumState) int { return s.total },
	}

	out, err := engine.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	got, err := pipe.Collect(context.Background(), out)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	// both events at t=0 and t=3s fall in window [-5s,5s) and [0,10s);
	// each contributes to two overlapping windows, so their sum (3)
	// should appear twice among the closed windows.
	sumOfThree := 0
	for _, v := range got {
		if v == 3 {
			sumOfThree++
		}
	}
	if sumOfThree != 2 {
		t.Fatalf("expected the two overlapping windows summing to 3 each, got %v", got)
	}
}

func TestSessionWindowClosesOnInactivityGap(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	items := []reading{
		{Sensor: "a", At: base, Value: 1},
		{Sensor: "a", At: base.Add(2 * time.Second), Value: 2},
		// gap of 1 minute closes the first session
		{Sensor: "a", At: base.Add(1 * time.Minute), Value: 10},
	}
	in := pipe.FromSlice("readings", items)

	engine := Engine[reading, string, sumState, int]{
		Window:    Session(10 * time.Second),
		KeyOf:     func(r reading) string { return r.Sensor },
		EventTime: func(r reading) time.Time { return r.At },
		Zero:      func() sumState { return sumState{} },
		Fold: func(s sumState, r reading) sumState {
			return sumState{count: s.count + 1, total: s.total + r.Value}
		},
		Finalize: func(s sumState) int { return s.total },
	}

	out, err := engine.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	got, err := pipe.Collect(context.Background(), out)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	want := []int{3, 10}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestSessionWindowMergesEventsWithinGap(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	items := []reading{
		{Sensor: "a", At: base, Value: 1},
		{Sensor: "a", At: base.Add(5 * time.Second), Value: 2},
		{Sensor: "a", At: base.Add(9 * time.Second), Value: 3},
	}
	in := pipe.FromSlice("readings", items)

	engine := Engine[reading, string, sumState, int]{
		Window:    Session(10 * time.Second),
		KeyOf:     func(r reading) string { return r.Sensor },
		EventTime: func(r reading) time.Time { return r.At },
		Zero:      func() sumState { return sumState{} },
		Fold: func(s sumState, r reading) sumState {
			return sumState{count: s.count + 1, total: s.total + r.Value}
		},
		Finalize: func(s sumState) int { return s.total },
	}

	out, err := engine.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	got, err := pipe.Collect(context.Background(), out)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(got) != 1 || got[0] != 6 {
		t.Fatalf("expected a single merged session summing to 6, got %v", got)
	}
}
