package graph

import (
	"fmt"
	"runtime"

	"github.com/npipeline/engine/strategy"
)

// Severity distinguishes a core rule violation (fails the build) from
// an extended one (reported but, by default, non-fatal).
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Category names which validation rule produced a ValidationError, by
// the rule's spec number.
type Category string

const (
	CategoryDuplicateName    Category = "duplicate-name"     // (1)
	CategoryDuplicateID      Category = "duplicate-id"       // (2)
	CategoryDanglingEdge     Category = "dangling-edge"      // (3)
	CategoryUnreachable      Category = "unreachable"        // (4)
	CategoryNoSource         Category = "no-source"          // (4)
	CategoryCycle            Category = "cycle"              // (5)
	CategoryTypeMismatch     Category = "type-mismatch"      // (6)
	CategoryNoSink           Category = "no-sink"            // (7)
	CategorySelfLoop         Category = "self-loop"          // (8)
	CategoryDuplicateEdge    Category = "duplicate-edge"     // (9)
	CategoryMultipleInbound  Category = "multiple-inbound"   // (10)
	CategoryResiliencePrereq Category = "resilience-prereqs" // (11)
	CategoryParallelSanity   Category = "parallel-sanity"    // (12)
)

// ValidationError is one finding from Validate: a severity, a
// category naming the rule, optional node/edge context, and a message.
type ValidationError struct {
	Severity Severity
	Category Category
	NodeID   string
	Edge     *Edge
	Message  string
}

func (e ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] %s (node %q): %s", e.Severity, e.Category, e.NodeID, e.Message)
	}
	if e.Edge != nil {
		return fmt.Sprintf("[%s] %s (edge %s->%s): %s", e.Severity, e.Category, e.Edge.From, e.Edge.To, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Category, e.Message)
}

// ValidationResult is the full rule-set run: Errors fail Build();
// Warnings are reported but, unless PromoteWarningsToErrors named them,
// do not.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// OK reports whether the graph has no errors (warnings are allowed).
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// validateOptions configures which extended rules run and which of
// them are promoted to errors.
type validateOptions struct {
	skipExtended    bool
	promoteToErrors map[Category]bool
}

// validate runs the full rule set (1)-(12) over g. Extended rules
// (7)-(12) are skipped entirely when opts.skipExtended is set;
// otherwise they run as warnings unless their category was promoted.
func (g *Graph) validate(opts validateOptions) ValidationResult {
	var result ValidationResult
	report := func(v ValidationError) {
		if v.Severity == SeverityError || opts.promoteToErrors[v.Category] {
			v.Severity = SeverityError
			result.Errors = append(result.Errors, v)
			return
		}
		result.Warnings = append(result.Warnings, v)
	}

	g.ruleUniqueNamesAndIDs(report)
	g.ruleEdgesReferenceExistingNodes(report)
	g.ruleReachabilityAndSource(report)
	g.ruleAcyclic(report)
	g.ruleTypeCompatibility(report)

	if !opts.skipExtended {
		g.ruleAtLeastOneSink(report)
		g.ruleNoSelfLoops(report)
		g.ruleNoDuplicateEdges(report)
		g.ruleSingleInboundUnlessJoin(report)
		g.ruleResiliencePrereqs(report)
		g.ruleParallelSanity(report)
	}

	return result
}

// (1)/(2) unique node names. Node ids are the keys of g.nodes and
// cannot repeat, so only names are checked here. addNode already
// rejects duplicate ids and names at insertion time with its own
// checks, so by the time validate runs the graph is already
// consistent; this rule reports findings for callers who bypass the
// builder and construct malformed graphs through reflection in tests.
func (g *Graph) ruleUniqueNamesAndIDs(report func(ValidationError)) {
	seenNames := make(map[string]bool)
	for _, id := range g.NodeIDs() {
		name := g.nodes[id].name
		if seenNames[name] {
			report(ValidationError{Severity: SeverityError, Category: CategoryDuplicateName, NodeID: id, Message: fmt.Sprintf("duplicate node name %q", name)})
		}
		seenNames[name] = true
	}
}

// (3) every edge references existing nodes.
func (g *Graph) ruleEdgesReferenceExistingNodes(report func(ValidationError)) {
	for _, e := range g.edges {
		edge := e
		if _, ok := g.nodes[e.From]; !ok {
			report(ValidationError{Severity: SeverityError, Category: CategoryDanglingEdge, Edge: &edge, Message: fmt.Sprintf("edge references missing source node %q", e.From)})
		}
		if _, ok := g.nodes[e.To]; !ok {
			report(ValidationError{Severity: SeverityError, Category: CategoryDanglingEdge, Edge: &edge, Message: fmt.Sprintf("edge references missing destination node %q", e.To)})
		}
	}
}

// (4) at least one source exists and every node is reachable from one.
func (g *Graph) ruleReachabilityAndSource(report func(ValidationError)) {
	var sources []string
	for _, id := range g.NodeIDs() {
		if g.nodes[id].kind == Source {
			sources = append(sources, id)
		}
	}
	if len(sources) == 0 {
		report(ValidationError{Severity: SeverityError, Category: CategoryNoSource, Message: "graph has no source node"})
		return
	}

	reachable := make(map[string]bool)
	var dfs func(id string)
	dfs = func(id string) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		for _, e := range g.edges {
			if e.From == id {
				dfs(e.To)
			}
		}
	}
	for _, s := range sources {
		dfs(s)
	}
	for _, id := range g.NodeIDs() {
		if !reachable[id] {
			report(ValidationError{Severity: SeverityError, Category: CategoryUnreachable, NodeID: id, Message: "node is unreachable from any source"})
		}
	}
}

// (5) the graph is acyclic.
func (g *Graph) ruleAcyclic(report func(ValidationError)) {
	visited := make(map[string]int) // 0 unvisited, 1 in-progress, 2 done
	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = 1
		for _, e := range g.edges {
			if e.From != id {
				continue
			}
			switch visited[e.To] {
			case 1:
				return true
			case 0:
				if dfs(e.To) {
					return true
				}
			}
		}
		visited[id] = 2
		return false
	}
	for _, id := range g.NodeIDs() {
		if visited[id] == 0 && dfs(id) {
			report(ValidationError{Severity: SeverityError, Category: CategoryCycle, Message: "graph contains a cycle"})
			return
		}
	}
}

// (6) type compatibility on every edge. Connect's generic signature
// already enforces this for graphs built through Builder; this rule
// re-checks the recorded type tags so a graph assembled any other way
// (tests, future non-generic entry points) cannot smuggle a mismatch
// past Build().
func (g *Graph) ruleTypeCompatibility(report func(ValidationError)) {
	for _, e := range g.edges {
		edge := e
		from, ok := g.nodes[e.From]
		if !ok {
			continue
		}
		to, ok := g.nodes[e.To]
		if !ok {
			continue
		}
		if from.outputType == "" || to.inputType == "" {
			continue
		}
		if from.outputType != to.inputType {
			report(ValidationError{
				Severity: SeverityError,
				Category: CategoryTypeMismatch,
				Edge:     &edge,
				Message:  fmt.Sprintf("output type %q is not assignable to input type %q", from.outputType, to.inputType),
			})
		}
	}
}

// (7) at least one sink exists.
func (g *Graph) ruleAtLeastOneSink(report func(ValidationError)) {
	for _, id := range g.NodeIDs() {
		if g.nodes[id].kind == Sink {
			return
		}
	}
	report(ValidationError{Severity: SeverityWarning, Category: CategoryNoSink, Message: "graph has no sink node"})
}

// (8) no self-loops.
func (g *Graph) ruleNoSelfLoops(report func(ValidationError)) {
	for _, e := range g.edges {
		edge := e
		if e.From == e.To {
			report(ValidationError{Severity: SeverityWarning, Category: CategorySelfLoop, Edge: &edge, Message: "self-loop edge"})
		}
	}
}

// (9) no duplicate edges. CanConnect already rejects these at
// connect-time through the normal builder path; this rule covers
// graphs assembled without it.
func (g *Graph) ruleNoDuplicateEdges(report func(ValidationError)) {
	seen := make(map[Edge]bool)
	for _, e := range g.edges {
		edge := e
		if seen[e] {
			report(ValidationError{Severity: SeverityWarning, Category: CategoryDuplicateEdge, Edge: &edge, Message: "duplicate edge"})
		}
		seen[e] = true
	}
}

// (10) a non-join node receives at most one inbound edge.
func (g *Graph) ruleSingleInboundUnlessJoin(report func(ValidationError)) {
	inbound := make(map[string]int)
	for _, e := range g.edges {
		inbound[e.To]++
	}
	for _, id := range g.NodeIDs() {
		kind := g.nodes[id].kind
		if kind == Join || kind == Aggregate {
			continue
		}
		if inbound[id] > 1 {
			report(ValidationError{Severity: SeverityWarning, Category: CategoryMultipleInbound, NodeID: id, Message: fmt.Sprintf("non-join node has %d inbound edges", inbound[id])})
		}
	}
}

// (11) resilience prerequisites: a resilient-strategy node needs a
// registered pipeline error handler, MaxNodeRestartAttempts > 0, and a
// positive finite MaxMaterializedItems. The pipeline-error-handler
// requirement is not checked here (the graph does not carry one) nor
// by the runner; here we check what the graph itself knows.
func (g *Graph) ruleResiliencePrereqs(report func(ValidationError)) {
	for _, id := range g.NodeIDs() {
		d := g.nodes[id]
		if d.strategy.Kind != strategy.KindResilient {
			continue
		}
		ro := d.retryOptions
		if ro == nil {
			report(ValidationError{Severity: SeverityWarning, Category: CategoryResiliencePrereq, NodeID: id, Message: "resilient strategy has no RetryOptions"})
			continue
		}
		if ro.MaxNodeRestartAttempts <= 0 {
			report(ValidationError{Severity: SeverityWarning, Category: CategoryResiliencePrereq, NodeID: id, Message: "resilient strategy requires MaxNodeRestartAttempts > 0"})
		}
		if ro.MaxMaterializedItems <= 0 {
			report(ValidationError{Severity: SeverityWarning, Category: CategoryResiliencePrereq, NodeID: id, Message: "resilient strategy requires a positive MaxMaterializedItems"})
		}
	}
}

// (12) parallel-config sanity.
func (g *Graph) ruleParallelSanity(report func(ValidationError)) {
	cores := runtime.NumCPU()
	for _, id := range g.NodeIDs() {
		d := g.nodes[id]
		if d.strategy.Kind != strategy.KindParallel {
			continue
		}
		p := d.strategy.Parallel
		if p.Degree > 4 && p.QueueLength <= 0 {
			report(ValidationError{Severity: SeverityWarning, Category: CategoryParallelSanity, NodeID: id, Message: "degree > 4 requires a finite queue bound"})
		}
		if (p.QueuePolicy != 0) && p.QueueLength <= 0 {
			report(ValidationError{Severity: SeverityWarning, Category: CategoryParallelSanity, NodeID: id, Message: "drop queue policies require a finite queue bound"})
		}
		if p.Degree > 8 && p.PreserveOrdering {
			report(ValidationError{Severity: SeverityWarning, Category: CategoryParallelSanity, NodeID: id, Message: "degree > 8 with PreserveOrdering may serialize most of the concurrency gain"})
		}
		if p.Degree > 4*cores {
			report(ValidationError{Severity: SeverityWarning, Category: CategoryParallelSanity, NodeID: id, Message: fmt.Sprintf("degree %d exceeds 4x available cores (%d)", p.Degree, cores)})
		}
	}
}
