// Package graph implements the graph model and validator of §3/§4.2:
// node definitions and edges keyed by id, frozen-on-build immutability,
// a structural hash for plan-cache keys, and a two-tier validation rule
// set (core errors, extended warnings).
package graph

// Kind tags what role a node definition plays in the DAG.
type Kind int

const (
	Source Kind = iota
	Transform
	StreamTransform
	Sink
	Join
	Aggregate
	Tap
	Branch
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Transform:
		return "transform"
	case StreamTransform:
		return "stream-transform"
	case Sink:
		return "sink"
	case Join:
		return "join"
	case Aggregate:
		return "aggregate"
	case Tap:
		return "tap"
	case Branch:
		return "branch"
	default:
		return "unknown"
	}
}

// MergePolicy selects how a multi-inbound node (join/aggregate)
// combines its upstream edges before its own Apply runs. Declared here
// as node metadata; the mechanics live in strategy.MergePolicy, which
// this is kept numerically aligned with.
type MergePolicy int

const (
	MergeConcat MergePolicy = iota
	MergeInterleave
	MergeCustom
)
