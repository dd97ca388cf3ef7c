package graph

import "github.com/npipeline/engine/strategy"

// nodeDefinition is the graph's internal, mutable-until-frozen record
// for one node (§3's "Node Definition"). Callers never see this type;
// NodeInfo is the read-only view handed to the plan compiler and
// diagram exporters once a graph is frozen.
type nodeDefinition struct {
	id              string
	name            string
	nodeType        string
	kind            Kind
	inputType       string
	outputType      string
	strategy        strategy.Config
	retryOptions    *strategy.RetryOptions
	errorHandlerTag string
	mergePolicy     MergePolicy
}

// NodeInfo is the read-only snapshot of a node definition exposed once
// a graph is frozen.
type NodeInfo struct {
	ID              string
	Name            string
	NodeType        string
	Kind            Kind
	InputType       string
	OutputType      string
	Strategy        strategy.Config
	RetryOptions    *strategy.RetryOptions
	ErrorHandlerTag string
	MergePolicy     MergePolicy
}

func (d *nodeDefinition) info() NodeInfo {
	return NodeInfo{
		ID:              d.id,
		Name:            d.name,
		NodeType:        d.nodeType,
		Kind:            d.kind,
		InputType:       d.inputType,
		OutputType:      d.outputType,
		Strategy:        d.strategy,
		RetryOptions:    d.retryOptions,
		ErrorHandlerTag: d.errorHandlerTag,
		MergePolicy:     d.mergePolicy,
	}
}

// Edge is a directed connection between two node ids, recorded in
// declaration order.
type Edge struct {
	From string
	To   string
}
