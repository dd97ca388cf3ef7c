package graph

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/npipeline/engine/strategy"
)

// Builder assembles a Graph with a fluent API, mirroring the teacher's
// GraphBuilder but generic over node element types (§4.2).
type Builder struct {
	g             *Graph
	opts          validateOptions
	buildErr      error
	preconfigured []string
}

// NewBuilder starts an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		g:    newGraph(),
		opts: validateOptions{promoteToErrors: make(map[Category]bool)},
	}
}

func typeTag[T any]() string {
	var zero T
	t := reflect.TypeOf(&zero).Elem()
	return t.String()
}

func (b *Builder) nextID(name string) string {
	if name != "" {
		return name
	}
	return uuid.NewString()
}

func (b *Builder) fail(err error) {
	if b.buildErr == nil {
		b.buildErr = err
	}
}

// AddSource registers a source node producing T.
func AddSource[T any](b *Builder, nodeType, name string) SourceHandle[T] {
	id := b.nextID(name)
	def := &nodeDefinition{id: id, name: name, nodeType: nodeType, kind: Source, outputType: typeTag[T]()}
	if err := b.g.addNode(def); err != nil {
		b.fail(err)
	}
	return SourceHandle[T]{id: id}
}

// AddTransform registers a 1-to-1 transform node mapping In to Out.
func AddTransform[In, Out any](b *Builder, nodeType, name string) TransformHandle[In, Out] {
	id := b.nextID(name)
	def := &nodeDefinition{id: id, name: name, nodeType: nodeType, kind: Transform, inputType: typeTag[In](), outputType: typeTag[Out]()}
	if err := b.g.addNode(def); err != nil {
		b.fail(err)
	}
	return TransformHandle[In, Out]{id: id}
}

// AddStreamTransform registers a pipe-to-pipe transform node.
func AddStreamTransform[In, Out any](b *Builder, nodeType, name string) StreamTransformHandle[In, Out] {
	id := b.nextID(name)
	def := &nodeDefinition{id: id, name: name, nodeType: nodeType, kind: StreamTransform, inputType: typeTag[In](), outputType: typeTag[Out]()}
	if err := b.g.addNode(def); err != nil {
		b.fail(err)
	}
	return StreamTransformHandle[In, Out]{id: id}
}

// AddSink registers a terminal sink node consuming T.
func AddSink[T any](b *Builder, nodeType, name string) SinkHandle[T] {
	id := b.nextID(name)
	def := &nodeDefinition{id: id, name: name, nodeType: nodeType, kind: Sink, inputType: typeTag[T]()}
	if err := b.g.addNode(def); err != nil {
		b.fail(err)
	}
	return SinkHandle[T]{id: id}
}

// AddJoin registers a two-inbound keyed join node. Its two sides are
// wired with ConnectLeft/ConnectRight rather than the plain Connect.
func AddJoin[K comparable, L, R, Out any](b *Builder, nodeType, name string, merge MergePolicy) JoinHandle[K, L, R, Out] {
	id := b.nextID(name)
	def := &nodeDefinition{id: id, name: name, nodeType: nodeType, kind: Join, outputType: typeTag[Out](), mergePolicy: merge}
	if err := b.g.addNode(def); err != nil {
		b.fail(err)
	}
	return JoinHandle[K, L, R, Out]{id: id}
}

// AddAggregate registers a windowed aggregation node.
func AddAggregate[In any, K comparable, State, Out any](b *Builder, nodeType, name string, merge MergePolicy) AggregateHandle[In, K, State, Out] {
	id := b.nextID(name)
	def := &nodeDefinition{id: id, name: name, nodeType: nodeType, kind: Aggregate, inputType: typeTag[In](), outputType: typeTag[Out](), mergePolicy: merge}
	if err := b.g.addNode(def); err != nil {
		b.fail(err)
	}
	return AggregateHandle[In, K, State, Out]{id: id}
}

// AddTap registers a pass-through node that duplicates items to a
// side-effect consumer without altering the main stream.
func AddTap[T any](b *Builder, nodeType, name string) TapHandle[T] {
	id := b.nextID(name)
	def := &nodeDefinition{id: id, name: name, nodeType: nodeType, kind: Tap, inputType: typeTag[T](), outputType: typeTag[T]()}
	if err := b.g.addNode(def); err != nil {
		b.fail(err)
	}
	return TapHandle[T]{id: id}
}

// AddBranch registers a fan-out node that duplicates items to multiple
// downstream consumers.
func AddBranch[T any](b *Builder, nodeType, name string) BranchHandle[T] {
	id := b.nextID(name)
	def := &nodeDefinition{id: id, name: name, nodeType: nodeType, kind: Branch, inputType: typeTag[T](), outputType: typeTag[T]()}
	if err := b.g.addNode(def); err != nil {
		b.fail(err)
	}
	return BranchHandle[T]{id: id}
}

// Connect wires from's output to to's input. The Go compiler enforces
// T-compatibility at the call site; Connect itself only performs the
// remaining §4.2 runtime checks (existence, cycle, duplicate, self).
func Connect[T any](b *Builder, from outHandle[T], to inHandle[T]) *Builder {
	if err := b.g.connect(from.outNodeID(), to.inNodeID()); err != nil {
		b.fail(err)
	}
	return b
}

// ConnectLeft wires from's output to a join node's left input.
func ConnectLeft[K comparable, L, R, Out any](b *Builder, from outHandle[L], to JoinHandle[K, L, R, Out]) *Builder {
	if err := b.g.connect(from.outNodeID(), to.id); err != nil {
		b.fail(err)
	}
	return b
}

// ConnectRight wires from's output to a join node's right input.
func ConnectRight[K comparable, L, R, Out any](b *Builder, from outHandle[R], to JoinHandle[K, L, R, Out]) *Builder {
	if err := b.g.connect(from.outNodeID(), to.id); err != nil {
		b.fail(err)
	}
	return b
}

// Preconfigure attaches a pre-built instance to a node at build time
// instead of letting the runner resolve one from a factory. Recorded
// on DefineContext/runner side, not the graph itself — the graph only
// needs to know such an instance exists so plancache can skip caching
// (§4.4's "preconfigured instances ... caching is skipped").
func (b *Builder) Preconfigure(id string) *Builder {
	b.preconfigured = append(b.preconfigured, id)
	return b
}

// SetStrategy assigns an execution strategy to a node.
func (b *Builder) SetStrategy(id string, cfg strategy.Config) *Builder {
	d, ok := b.g.nodes[id]
	if !ok {
		b.fail(fmt.Errorf("graph: SetStrategy: node %q does not exist", id))
		return b
	}
	d.strategy = cfg
	return b
}

// SetRetryOptions assigns retry/restart options to a node.
func (b *Builder) SetRetryOptions(id string, opts strategy.RetryOptions) *Builder {
	d, ok := b.g.nodes[id]
	if !ok {
		b.fail(fmt.Errorf("graph: SetRetryOptions: node %q does not exist", id))
		return b
	}
	d.retryOptions = &opts
	return b
}

// SetCustomMerge marks a join/aggregate node's merge policy as backed
// by a user-supplied delegate rather than Concat/Interleave. The
// caller must also register the delegate itself in the instances map
// passed to plan.Compile, via plan.BindCustomMerge, or Compile fails.
func (b *Builder) SetCustomMerge(id string) *Builder {
	d, ok := b.g.nodes[id]
	if !ok {
		b.fail(fmt.Errorf("graph: SetCustomMerge: node %q does not exist", id))
		return b
	}
	d.mergePolicy = MergeCustom
	return b
}

// SetErrorHandlerTag records which registered node error handler a
// node should use.
func (b *Builder) SetErrorHandlerTag(id, tag string) *Builder {
	d, ok := b.g.nodes[id]
	if !ok {
		b.fail(fmt.Errorf("graph: SetErrorHandlerTag: node %q does not exist", id))
		return b
	}
	d.errorHandlerTag = tag
	return b
}

// WithoutExtendedValidation disables rules (7)-(12); only the core
// rules (1)-(6) run.
func (b *Builder) WithoutExtendedValidation() *Builder {
	b.opts.skipExtended = true
	return b
}

// PromoteWarningsToErrors opts specific extended-rule categories into
// error severity, for graphs that want production-grade strictness
// without disabling the rest of the warnings (the spec's open
// question on "recommends an opt-in to error", decided here as a
// builder method — see DESIGN.md).
func (b *Builder) PromoteWarningsToErrors(categories ...Category) *Builder {
	for _, c := range categories {
		b.opts.promoteToErrors[c] = true
	}
	return b
}

// Preconfigured returns the node ids given a pre-built instance via
// Preconfigure.
func (b *Builder) Preconfigured() []string {
	out := make([]string, len(b.preconfigured))
	copy(out, b.preconfigured)
	return out
}

// Validate runs the full rule set without freezing the graph.
func (b *Builder) Validate() ValidationResult {
	return b.g.validate(b.opts)
}

// Build runs validation, freezes the graph on success, and computes
// its structural hash.
func (b *Builder) Build() (*Graph, error) {
	if b.buildErr != nil {
		return nil, b.buildErr
	}
	result := b.g.validate(b.opts)
	if !result.OK() {
		return nil, fmt.Errorf("graph: validation failed with %d error(s): %w", len(result.Errors), result.Errors[0])
	}
	b.g.freeze()
	return b.g, nil
}
