package join

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/npipeline/engine/pipe"
)

type order struct {
	CustomerID int
	Amount     int
}

func TestInnerJoinProducesCartesianProductPerKey(t *testing.T) {
	left := pipe.FromSlice("left", []order{{1, 10}, {1, 20}, {2, 30}})
	right := pipe.FromSlice("right", []order{{1, 100}, {2, 200}, {3, 300}})

	engine := Engine[int, order, order, int]{
		Kind:    Inner,
		KeyLeft: func(o order) int { return o.CustomerID },
		KeyRight: func(o order) int { return o.CustomerID },
		Combine: func(l, r order) int { return l.Amount + r.Amount },
	}
	out, err := engine.Apply(context.Background(), left, right)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	got, err := pipe.Collect(context.Background(), out)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	sort.Ints(got)
	want := []int{110, 120, 230}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestLeftOuterSelfJoinEmitsFallbackForUnmatchedCustomers(t *testing.T) {
	type taggedOrder = order
	items := []any{
		Left[taggedOrder]{Item: order{1, 1000}},
		Left[taggedOrder]{Item: order{2, 1500}},
		Left[taggedOrder]{Item: order{3, 2000}},
		Right[taggedOrder]{Item: order{1, 800}},
		Right[taggedOrder]{Item: order{2, 1200}},
		Right[taggedOrder]{Item: order{4, 900}},
	}
	in := pipe.FromSlice("tagged", items)

	engine := Engine[int, order, order, string]{
		Kind:     LeftOuter,
		KeyLeft:  func(o order) int { return o.CustomerID },
		KeyRight: func(o order) int { return o.CustomerID },
		Combine: func(l, r order) string {
			return "matched"
		},
		CombineLeftOnly: func(l order) string {
			return "fallback"
		},
	}
	out, err := SelfJoin[int, order, string](context.Background(), in, engine)
	if err != nil {
		t.Fatalf("self-join failed: %v", err)
	}
	got, err := pipe.Collect(context.Background(), out)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results (1/2 matched, 3 fallback), got %v", got)
	}
	fallbackCount := 0
	for _, v := range got {
		if v == "fallback" {
			fallbackCount++
		}
	}
	if fallbackCount != 1 {
		t.Fatalf("expected exactly one fallback for customer 3, got %d in %v", fallbackCount, got)
	}
}

func TestWindowedJoinOnlyMatchesWithinWindow(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	left := pipe.FromSlice("left", []order{{1, 1}})
	right := pipe.FromSlice("right", []order{{1, 2}, {1, 3}})

	w := Windowed[int, order, order, int]{
		Engine: Engine[int, order, order, int]{
			Kind:     Inner,
			KeyLeft:  func(o order) int { return o.CustomerID },
			KeyRight: func(o order) int { return o.CustomerID },
			Combine:  func(l, r order) int { return l.Amount + r.Amount },
		},
		KeyTimeLeft:  func(order) time.Time { return base },
		KeyTimeRight: nil,
		WindowSize:   5 * time.Second,
	}
	// r1 within window (base+2s), r2 outside (base+30s).
	w.KeyTimeRight = func(o order) time.Time {
		if o.Amount == 2 {
			return base.Add(2 * time.Second)
		}
		return base.Add(30 * time.Second)
	}

	out, err := w.Apply(context.Background(), left, right)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	got, err := pipe.Collect(context.Background(), out)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected single match 1+2=3, got %v", got)
	}
}
