package npipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/npipeline/engine/graph"
	"github.com/npipeline/engine/node"
	"github.com/npipeline/engine/pipe"
	"github.com/npipeline/engine/plan"

	"github.com/npipeline/engine"
)

type words struct{ items []string }

func (w words) Init(ctx context.Context) (node.Pipe[string], error) {
	return pipe.FromSlice("words", w.items), nil
}

type upper struct{}

func (upper) Apply(ctx context.Context, item string) (string, error) {
	return strings.ToUpper(item), nil
}

type collect struct{ got *[]string }

func (c collect) Consume(ctx context.Context, in node.Pipe[string]) error {
	items, err := pipe.Collect(ctx, in)
	if err != nil {
		return err
	}
	*c.got = append(*c.got, items...)
	return nil
}

type uppercaseDefinition struct {
	srcID, xfID, snkID *string
}

func (d uppercaseDefinition) Define(b *npipeline.Builder, pctx npipeline.DefineContext) error {
	src := graph.AddSource[string](b, "const", "src")
	xf := graph.AddTransform[string, string](b, "upper", "xf")
	snk := graph.AddSink[string](b, "collect", "snk")
	graph.Connect[string](b, src, xf)
	graph.Connect[string](b, xf, snk)
	*d.srcID, *d.xfID, *d.snkID = src.ID(), xf.ID(), snk.ID()
	return nil
}

func TestFacadeRunUppercaseChain(t *testing.T) {
	var srcID, xfID, snkID string
	def := uppercaseDefinition{srcID: &srcID, xfID: &xfID, snkID: &snkID}

	probe := npipeline.NewBuilder()
	if err := def.Define(probe, npipeline.DefineContext{}); err != nil {
		t.Fatalf("define: %v", err)
	}

	var got []string
	factory := func(nodeID string, info graph.NodeInfo) (any, error) {
		switch nodeID {
		case srcID:
			return plan.BindSource[string](words{items: []string{"a", "b"}}), nil
		case xfID:
			return plan.BindTransform[string, string](upper{}), nil
		case snkID:
			return plan.BindSink[string](collect{got: &got}), nil
		default:
			return nil, errors.New("unknown node")
		}
	}

	err := npipeline.Run(context.Background(), def,
		npipeline.WithInstanceFactory(npipeline.InstanceFactory(factory)),
		npipeline.DisableCache(),
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"A", "B"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFacadeDescribeAndDiagrams(t *testing.T) {
	b := npipeline.NewBuilder()
	src := graph.AddSource[int](b, "range", "src")
	snk := graph.AddSink[int](b, "collect", "snk")
	graph.Connect[int](b, src, snk)

	out, err := b.Describe()
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if !strings.Contains(out, "src") || !strings.Contains(out, "snk") {
		t.Fatalf("expected describe output to mention both nodes, got:\n%s", out)
	}

	mermaid := b.ToMermaidDiagram()
	if !strings.HasPrefix(mermaid, "graph TD\n") {
		t.Fatalf("expected mermaid output, got:\n%s", mermaid)
	}

	dot, err := b.ToDotDiagram()
	if err != nil {
		t.Fatalf("dot: %v", err)
	}
	if !strings.Contains(dot, "digraph") {
		t.Fatalf("expected dot output, got:\n%s", dot)
	}
}
