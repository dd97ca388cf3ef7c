package graph

// Handles are thin, typed references returned by the builder's
// Add… operations. They carry only a node id plus phantom type
// parameters — the Go compiler, not a runtime check, is what enforces
// Connect's type compatibility at the call site (§3's "Handle", §9's
// lowering option (b)).

type SourceHandle[T any] struct{ id string }

func (h SourceHandle[T]) ID() string        { return h.id }
func (h SourceHandle[T]) outNodeID() string { return h.id }

type TransformHandle[In, Out any] struct{ id string }

func (h TransformHandle[In, Out]) ID() string        { return h.id }
func (h TransformHandle[In, Out]) inNodeID() string  { return h.id }
func (h TransformHandle[In, Out]) outNodeID() string { return h.id }

type StreamTransformHandle[In, Out any] struct{ id string }

func (h StreamTransformHandle[In, Out]) ID() string        { return h.id }
func (h StreamTransformHandle[In, Out]) inNodeID() string  { return h.id }
func (h StreamTransformHandle[In, Out]) outNodeID() string { return h.id }

type SinkHandle[T any] struct{ id string }

func (h SinkHandle[T]) ID() string       { return h.id }
func (h SinkHandle[T]) inNodeID() string { return h.id }

type JoinHandle[K comparable, L, R, Out any] struct{ id string }

func (h JoinHandle[K, L, R, Out]) ID() string        { return h.id }
func (h JoinHandle[K, L, R, Out]) outNodeID() string { return h.id }

type AggregateHandle[In any, K comparable, State, Out any] struct{ id string }

func (h AggregateHandle[In, K, State, Out]) ID() string        { return h.id }
func (h AggregateHandle[In, K, State, Out]) inNodeID() string  { return h.id }
func (h AggregateHandle[In, K, State, Out]) outNodeID() string { return h.id }

type TapHandle[T any] struct{ id string }

func (h TapHandle[T]) ID() string        { return h.id }
func (h TapHandle[T]) inNodeID() string  { return h.id }
func (h TapHandle[T]) outNodeID() string { return h.id }

type BranchHandle[T any] struct{ id string }

func (h BranchHandle[T]) ID() string        { return h.id }
func (h BranchHandle[T]) inNodeID() string  { return h.id }
func (h BranchHandle[T]) outNodeID() string { return h.id }

// outHandle and inHandle are the phantom-typed capabilities Connect
// type-checks against: from must produce T, to must accept T.
type outHandle[T any] interface{ outNodeID() string }
type inHandle[T any] interface{ inNodeID() string }
