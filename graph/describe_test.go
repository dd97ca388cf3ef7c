package graph_test

import (
	"strings"
	"testing"

	"github.com/npipeline/engine/graph"
)

func TestDescribeIsStableAcrossAdditionOrder(t *testing.T) {
	b1 := graph.NewBuilder()
	src := graph.AddSource[int](b1, "range", "src")
	xf := graph.AddTransform[int, string](b1, "itoa", "xf")
	snk := graph.AddSink[string](b1, "collect", "snk")
	graph.Connect[int](b1, src, xf)
	graph.Connect[string](b1, xf, snk)
	out1, err := b1.Describe()
	if err != nil {
		t.Fatalf("describe: %v", err)
	}

	// A second builder that adds the same three nodes in reverse
	// declaration order but keeps the same ids/edges once built must
	// produce identical Describe output: describe order is sorted by
	// id, not insertion order.
	b2 := graph.NewBuilder()
	snk2 := graph.AddSink[string](b2, "collect", "snk")
	xf2 := graph.AddTransform[int, string](b2, "itoa", "xf")
	src2 := graph.AddSource[int](b2, "range", "src")
	graph.Connect[int](b2, src2, xf2)
	graph.Connect[string](b2, xf2, snk2)
	out2, err := b2.Describe()
	if err != nil {
		t.Fatalf("describe: %v", err)
	}

	if out1 != out2 {
		t.Fatalf("expected describe output independent of declaration order:\n%s\nvs\n%s", out1, out2)
	}
}

func TestToMermaidDiagramContainsEdge(t *testing.T) {
	b := graph.NewBuilder()
	src := graph.AddSource[int](b, "range", "src")
	snk := graph.AddSink[int](b, "collect", "snk")
	graph.Connect[int](b, src, snk)

	out := b.ToMermaidDiagram()
	if !strings.HasPrefix(out, "graph TD\n") {
		t.Fatalf("expected a mermaid flowchart header, got:\n%s", out)
	}
	if !strings.Contains(out, "src --> snk") {
		t.Fatalf("expected src --> snk edge, got:\n%s", out)
	}
}

func TestToDotDiagramContainsDigraph(t *testing.T) {
	b := graph.NewBuilder()
	src := graph.AddSource[int](b, "range", "src")
	snk := graph.AddSink[int](b, "collect", "snk")
	graph.Connect[int](b, src, snk)

	out, err := b.ToDotDiagram()
	if err != nil {
		t.Fatalf("dot: %v", err)
	}
	if !strings.Contains(out, "digraph") {
		t.Fatalf("expected a digraph block, got:\n%s", out)
	}
}
