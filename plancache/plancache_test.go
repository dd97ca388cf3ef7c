package plancache_test

import (
	"testing"

	"github.com/npipeline/engine/plan"
	"github.com/npipeline/engine/plancache"
)

func TestInMemoryPutThenTryGetHits(t *testing.T) {
	c := plancache.NewInMemory()
	cg := &plan.CompiledGraph{}
	c.Put("uppercase-chain", 0xABCD, cg)

	got, ok := c.TryGet("uppercase-chain", 0xABCD)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != cg {
		t.Fatal("expected the same *CompiledGraph back")
	}
	if c.Count() != 1 {
		t.Fatalf("expected count 1, got %d", c.Count())
	}
}

func TestInMemoryMissOnDifferentHash(t *testing.T) {
	c := plancache.NewInMemory()
	c.Put("uppercase-chain", 1, &plan.CompiledGraph{})
	if _, ok := c.TryGet("uppercase-chain", 2); ok {
		t.Fatal("expected a miss for a different structural hash")
	}
}

func TestInMemoryMissOnDifferentDefType(t *testing.T) {
	c := plancache.NewInMemory()
	c.Put("uppercase-chain", 1, &plan.CompiledGraph{})
	if _, ok := c.TryGet("other-def", 1); ok {
		t.Fatal("expected a miss for a different definition type")
	}
}

func TestInMemoryPutReplacesWithoutGrowingCount(t *testing.T) {
	c := plancache.NewInMemory()
	first := &plan.CompiledGraph{}
	second := &plan.CompiledGraph{}
	c.Put("def", 1, first)
	c.Put("def", 1, second)
	if c.Count() != 1 {
		t.Fatalf("expected count to stay 1 after replacement, got %d", c.Count())
	}
	got, _ := c.TryGet("def", 1)
	if got != second {
		t.Fatal("expected the replacement value")
	}
}

func TestInMemoryClearEmptiesCache(t *testing.T) {
	c := plancache.NewInMemory()
	c.Put("def", 1, &plan.CompiledGraph{})
	c.Clear()
	if c.Count() != 0 {
		t.Fatalf("expected count 0 after Clear, got %d", c.Count())
	}
	if _, ok := c.TryGet("def", 1); ok {
		t.Fatal("expected a miss after Clear")
	}
}

func TestNullCacheAlwaysMisses(t *testing.T) {
	var n plancache.Null
	n.Put("def", 1, &plan.CompiledGraph{})
	if _, ok := n.TryGet("def", 1); ok {
		t.Fatal("expected Null cache to always miss")
	}
	if n.Count() != 0 {
		t.Fatalf("expected Null cache count 0, got %d", n.Count())
	}
}

var _ plancache.Cache = (*plancache.InMemory)(nil)
var _ plancache.Cache = plancache.Null{}
