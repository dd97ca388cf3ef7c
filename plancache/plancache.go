// Package plancache implements §4.4's plan cache: compiled graphs keyed
// by definition type and structural hash, so the runner can skip plan
// compilation across repeated runs of the same pipeline definition.
// The graph itself is still built on every run, since its structural
// hash is part of the key.
package plancache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/npipeline/engine/plan"
)

// key identifies one cache entry: a definition type name paired with
// the structural hash of the graph it produced. Two runs of the same
// Definition that build structurally identical graphs share an entry;
// any change to the graph's shape changes the hash and misses.
type key struct {
	defType        string
	structuralHash uint64
}

func (k key) String() string {
	return fmt.Sprintf("%s@%x", k.defType, k.structuralHash)
}

// Cache stores compiled plans keyed by (definition type, structural
// hash). Implementations must be safe for concurrent use.
type Cache interface {
	TryGet(defType string, structuralHash uint64) (*plan.CompiledGraph, bool)
	Put(defType string, structuralHash uint64, plans *plan.CompiledGraph)
	Clear()
	Count() int
}

// InMemory is a process-local Cache backed by sync.Map: concurrent
// reads never block each other, and a concurrent Put racing a TryGet
// for the same key resolves last-writer-wins, matching §4.4/§5's
// "replacements bring their own" cache semantics. There is no
// eviction — entries live until Clear or process exit.
type InMemory struct {
	m     sync.Map
	count int64
}

// NewInMemory builds an empty in-memory plan cache.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (c *InMemory) TryGet(defType string, structuralHash uint64) (*plan.CompiledGraph, bool) {
	v, ok := c.m.Load(key{defType: defType, structuralHash: structuralHash})
	if !ok {
		return nil, false
	}
	return v.(*plan.CompiledGraph), true
}

func (c *InMemory) Put(defType string, structuralHash uint64, plans *plan.CompiledGraph) {
	k := key{defType: defType, structuralHash: structuralHash}
	if _, loaded := c.m.Swap(k, plans); !loaded {
		atomic.AddInt64(&c.count, 1)
	}
}

func (c *InMemory) Clear() {
	c.m.Range(func(k, _ any) bool {
		c.m.Delete(k)
		return true
	})
	atomic.StoreInt64(&c.count, 0)
}

func (c *InMemory) Count() int {
	return int(atomic.LoadInt64(&c.count))
}

// Null is a Cache that always misses and discards every Put, for
// callers that called runner.DisableCache() or that registered a
// Preconfigure'd node instance — §4.4 requires caching be skipped in
// both cases since a preconfigured instance is not reproducible from
// structural hash alone.
type Null struct{}

func (Null) TryGet(string, uint64) (*plan.CompiledGraph, bool) { return nil, false }
func (Null) Put(string, uint64, *plan.CompiledGraph)           {}
func (Null) Clear()                                            {}
func (Null) Count() int                                        { return 0 }
