// Package strategy implements the per-node execution strategies:
// sequential, parallel, batching, and resilient (retry + restart).
// Every strategy wraps a compiled plan's Apply function; none of them
// perform reflection.
package strategy

import "time"

// QueuePolicy controls what the parallel strategy does when its
// inbound queue is full.
type QueuePolicy int

const (
	// Block applies upstream backpressure until a slot frees up.
	Block QueuePolicy = iota
	// DropOldest evicts the oldest queued item to make room.
	DropOldest
	// DropNewest discards the incoming item instead of queueing it.
	DropNewest
)

func (p QueuePolicy) String() string {
	switch p {
	case Block:
		return "block"
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	default:
		return "unknown"
	}
}

// ParallelConfig configures the Parallel strategy.
type ParallelConfig struct {
	// Degree is the number of concurrent workers. Degree == 1 behaves
	// like Sequential modulo queue buffering.
	Degree int
	// QueueLength bounds the inbound queue. <= 0 means unbounded,
	// which is only legal with QueuePolicy == Block.
	QueueLength int
	// QueuePolicy decides what happens when the queue is full.
	QueuePolicy QueuePolicy
	// PreserveOrdering, when true, buffers out-of-order completions
	// and emits them in input order.
	PreserveOrdering bool
}

// BatchConfig configures the Batching strategy.
type BatchConfig struct {
	// Size is the maximum number of items per batch.
	Size int
	// Timeout flushes a partial batch if it has not reached Size
	// within this duration of the first item arriving.
	Timeout time.Duration
}

// Kind identifies which strategy a node was configured with. It is
// stored on graph.NodeDefinition so the plan compiler knows which
// wrapper to instantiate.
type Kind int

const (
	KindSequential Kind = iota
	KindParallel
	KindBatching
	KindResilient
)

func (k Kind) String() string {
	switch k {
	case KindSequential:
		return "sequential"
	case KindParallel:
		return "parallel"
	case KindBatching:
		return "batching"
	case KindResilient:
		return "resilient"
	default:
		return "unknown"
	}
}

// Config is the strategy selection plus its parameters for a single
// node, as recorded on the graph. Exactly one of Parallel/Batch is
// meaningful depending on Kind; Resilient wraps whichever inner Kind
// the node also declares (Sequential by default).
type Config struct {
	Kind     Kind
	Parallel ParallelConfig
	Batch    BatchConfig
	// Inner is the strategy a Resilient config wraps. Ignored unless
	// Kind == KindResilient.
	Inner *Config
}

// Sequential is the zero-configuration default strategy.
func Sequential() Config { return Config{Kind: KindSequential} }

// ParallelStrategy builds a parallel Config.
func ParallelStrategy(cfg ParallelConfig) Config {
	return Config{Kind: KindParallel, Parallel: cfg}
}

// BatchingStrategy builds a batching Config.
func BatchingStrategy(cfg BatchConfig) Config {
	return Config{Kind: KindBatching, Batch: cfg}
}

// ResilientStrategy wraps inner with retry/restart semantics.
func ResilientStrategy(inner Config) Config {
	return Config{Kind: KindResilient, Inner: &inner}
}
