package graph

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
)

// ErrGraphFrozen is returned by any mutating method called after Build
// has succeeded.
var ErrGraphFrozen = errors.New("graph: graph is frozen")

// Graph is the frozen-on-build DAG of node definitions and edges. Zero
// value is not usable; construct one through Builder.
type Graph struct {
	nodes  map[string]*nodeDefinition
	order  []string // node ids in insertion order
	edges  []Edge
	frozen bool
	hash   uint64
}

func newGraph() *Graph {
	return &Graph{nodes: make(map[string]*nodeDefinition)}
}

func (g *Graph) addNode(def *nodeDefinition) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if _, exists := g.nodes[def.id]; exists {
		return fmt.Errorf("graph: node id %q already exists", def.id)
	}
	for _, other := range g.nodes {
		if other.name == def.name {
			return fmt.Errorf("graph: node name %q already exists", def.name)
		}
	}
	g.nodes[def.id] = def
	g.order = append(g.order, def.id)
	return nil
}

// CanConnect rejects a self-loop, a missing source or destination
// node, a duplicate edge, and an edge that would close a cycle. It
// does not compare item types; Connect's type parameters enforce that
// at compile time. reason is empty when ok is true.
func (g *Graph) CanConnect(fromID, toID string) (ok bool, reason string) {
	if fromID == toID {
		return false, fmt.Sprintf("node %q cannot connect to itself", fromID)
	}
	if _, exists := g.nodes[fromID]; !exists {
		return false, fmt.Sprintf("source node %q does not exist", fromID)
	}
	if _, exists := g.nodes[toID]; !exists {
		return false, fmt.Sprintf("destination node %q does not exist", toID)
	}
	for _, e := range g.edges {
		if e.From == fromID && e.To == toID {
			return false, fmt.Sprintf("edge %q -> %q already exists", fromID, toID)
		}
	}
	if g.introducesCycle(fromID, toID) {
		return false, fmt.Sprintf("edge %q -> %q would introduce a cycle", fromID, toID)
	}
	return true, ""
}

// introducesCycle reports whether adding fromID->toID would let toID
// reach fromID again, via a plain DFS over the edges recorded so far.
func (g *Graph) introducesCycle(fromID, toID string) bool {
	if fromID == toID {
		return true
	}
	visited := make(map[string]bool)
	var dfs func(id string) bool
	dfs = func(id string) bool {
		if id == fromID {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, e := range g.edges {
			if e.From == id {
				if dfs(e.To) {
					return true
				}
			}
		}
		return false
	}
	return dfs(toID)
}

func (g *Graph) connect(fromID, toID string) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if ok, reason := g.CanConnect(fromID, toID); !ok {
		return errors.New("graph: " + reason)
	}
	g.edges = append(g.edges, Edge{From: fromID, To: toID})
	return nil
}

// freeze finalizes the graph: computes the structural hash and marks
// it immutable. Validation is the builder's responsibility, run before
// freeze is called.
func (g *Graph) freeze() {
	g.frozen = true
	g.hash = g.computeStructuralHash()
}

// IsFrozen reports whether Build has already succeeded for this graph.
func (g *Graph) IsFrozen() bool { return g.frozen }

// StructuralHash returns the FNV-1a hash used as the plan cache key,
// valid only once the graph is frozen.
func (g *Graph) StructuralHash() uint64 { return g.hash }

// Node returns the read-only info for a node id.
func (g *Graph) Node(id string) (NodeInfo, bool) {
	d, ok := g.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	return d.info(), true
}

// NodeIDs returns every node id in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Edges returns a copy of the declared edges, in declaration order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// computeStructuralHash hashes the sorted node ids, kinds, type tags,
// sorted edges, and per-node strategy tag — deterministic regardless
// of insertion order, per the Testable Properties invariant.
func (g *Graph) computeStructuralHash() uint64 {
	h := fnv.New64a()
	ids := g.NodeIDs()
	for _, id := range ids {
		d := g.nodes[id]
		fmt.Fprintf(h, "node|%s|%s|%s|%s|%s\n", d.id, d.kind, d.inputType, d.outputType, d.strategy.Kind)
	}
	edges := make([]Edge, len(g.edges))
	copy(edges, g.edges)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	for _, e := range edges {
		fmt.Fprintf(h, "edge|%s|%s\n", e.From, e.To)
	}
	return h.Sum64()
}
