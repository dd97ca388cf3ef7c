package graph

import (
	"sort"

	"github.com/npipeline/engine/internal/diagram"
)

// Describe renders the builder's current graph shape (nodes, edges,
// kinds, strategies) as YAML. Safe to call before or after Build;
// §6/§8's "Describe ∘ Build is deterministic" property holds because
// nodes are always walked in sorted-id order regardless of the order
// they were added in.
func (b *Builder) Describe() (string, error) {
	return diagram.Describe(b.diagramView())
}

// ToMermaidDiagram renders the builder's current graph shape as a
// Mermaid flowchart.
func (b *Builder) ToMermaidDiagram() string {
	return diagram.Mermaid(b.diagramView())
}

// ToDotDiagram renders the builder's current graph shape as a
// Graphviz DOT digraph.
func (b *Builder) ToDotDiagram() (string, error) {
	return diagram.Dot(b.diagramView())
}

func (b *Builder) diagramView() diagram.Graph {
	ids := make([]string, 0, len(b.g.nodes))
	for id := range b.g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes := make([]diagram.Node, 0, len(ids))
	for _, id := range ids {
		info := b.g.nodes[id].info()
		nodes = append(nodes, diagram.Node{
			ID:         info.ID,
			Name:       info.Name,
			NodeType:   info.NodeType,
			Kind:       info.Kind.String(),
			InputType:  info.InputType,
			OutputType: info.OutputType,
			Strategy:   info.Strategy.Kind.String(),
		})
	}

	edges := make([]diagram.Edge, 0, len(b.g.edges))
	for _, e := range b.g.edges {
		edges = append(edges, diagram.Edge{From: e.From, To: e.To})
	}

	return diagram.Graph{Nodes: nodes, Edges: edges}
}
