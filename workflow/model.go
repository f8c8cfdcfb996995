package workflow

import "time"

// Definition is an immutable workflow graph: a name, a state schema reference, and an
// ordered sequence of nodes, per spec §3.1. Definitions are built once (typically at
// program init) via NewDefinition and are thereafter read-only and safely shared
// across any number of concurrent instances.
type Definition struct {
	// Name identifies the workflow. Must be non-empty (AGWF001) and unique within
	// Namespace.
	Name string

	// Namespace groups workflow names so two unrelated workflows may share a Name
	// without colliding (AGWF004: namespace must not be empty/global).
	Namespace string

	// StateSchemaID references the StateSchema this workflow's reducer uses.
	StateSchemaID string

	// Nodes is the ordered top-level node sequence, starting with the entry step.
	Nodes []Node
}

// NewDefinition constructs a Definition. It performs no validation itself; callers
// run Verify(def) before handing the definition to an Engine.
func NewDefinition(namespace, name, stateSchemaID string, nodes ...Node) *Definition {
	return &Definition{Namespace: namespace, Name: name, StateSchemaID: stateSchemaID, Nodes: nodes}
}

// Node is the sum type over the six node variants of spec §3.1. Exactly one of the
// pointer fields is non-nil; Kind reports which. This mirrors the teacher's
// tagged-variant mapping of Design Note §9 ("map to tagged variants or interface-typed
// containers") rather than a Go interface with type switches at every call site, since
// the verifier and engine both need to pattern-match exhaustively and a closed struct
// keeps that exhaustiveness checkable by a linter/compiler via the Kind constant.
type Node struct {
	Kind NodeKind

	Step           *StepNode
	Branch         *BranchNode
	Fork           *ForkNode
	Loop           *LoopNode
	Approval       *ApprovalNode
	FailureHandler *FailureHandlerNode
}

// NodeKind discriminates which variant of Node is populated.
type NodeKind int

const (
	KindStep NodeKind = iota
	KindBranch
	KindFork
	KindLoop
	KindApproval
	KindFailureHandler
)

// StepNode invokes a user-defined Step implementation, per spec §3.1.
type StepNode struct {
	// StepTypeID identifies which registered Step implementation to invoke.
	StepTypeID string

	// InstanceName disambiguates repeated uses of the same StepTypeID within a
	// workflow; defaults to StepTypeID if empty. Subject to AGWF003 uniqueness.
	InstanceName string

	// IsTerminal marks this step as ending the workflow (or enclosing fork
	// path/loop body) on successful completion.
	IsTerminal bool

	// IsEntry marks the first node of the top-level sequence (AGWF009).
	IsEntry bool
}

func (s StepNode) Name() string {
	if s.InstanceName != "" {
		return s.InstanceName
	}
	return s.StepTypeID
}

// BranchNode routes execution by a state-derived discriminator, per spec §3.1 and
// §4.4 step 3.
type BranchNode struct {
	// DiscriminatorName labels the branch for diagnostics; evaluation itself is
	// performed by Discriminate against the live state.
	DiscriminatorName string

	// Discriminate computes the case key to match against Cases[i].Key. Returning
	// an empty string with no default case is a runtime ErrNoMatchingBranch.
	Discriminate StateDiscriminator

	// Cases is the ordered set of branch arms. The first case whose Key matches
	// wins; ties are impossible since Key is unique per BranchNode by convention
	// (not separately enforced, mirroring AGWF003's "duplicates in mutually
	// exclusive paths are permitted").
	Cases []BranchCase

	// RejoinStepID names the step all non-terminal cases rejoin at. Empty means
	// every case's sub-sequence runs to its own completion (no rejoin).
	RejoinStepID string
}

// StateDiscriminator computes a branch's case-selection key from the live state. The
// concrete state type is erased to `any` here since Definition/Node are not generic
// (spec §9 Design Note: graphs reference nodes by ID, not by pointer, and are built
// once for whatever state type the caller's StateSchema was registered against). The
// engine passes the live state as `any`; the discriminator asserts the concrete type itself.
type StateDiscriminator func(state any) string

// BranchCase is one arm of a BranchNode.
type BranchCase struct {
	Key      string
	Sequence []Node
}

// ForkNode runs N parallel sub-sequences that converge at a join step, per spec §3.1
// and §4.4 step 4 / the fork/join protocol of §4.4.
type ForkNode struct {
	// Paths is the ordered set of parallel sub-sequences; path index is stable and
	// used to order ForkContext.Paths at join time regardless of completion order.
	Paths [][]Node

	// JoinStepID names the step that receives the ForkContext once all N
	// PathCompleted events are present (AGWF012: every Fork has a matching Join).
	JoinStepID string
}

// LoopNode repeats its Body until ExitPredicate holds or MaxIterations is reached,
// per spec §3.1 and §4.4 step 5 / the loop protocol of §4.4.
type LoopNode struct {
	// LoopName identifies the loop for event payloads (LoopIterationCompleted,
	// LoopLimitReached) and for the loop frame during verification.
	LoopName string

	// ExitPredicate is evaluated against the latest state after each body
	// completion; a true result advances to the continuation.
	ExitPredicate StateDiscriminatorBool

	// Body is the repeated sub-sequence; must contain at least one step (AGWF014).
	Body []Node

	// MaxIterations bounds iteration count regardless of predicate behavior (spec
	// §8 invariant 7: loop termination).
	MaxIterations int
}

// StateDiscriminatorBool is a boolean predicate over live state, used by LoopNode.
type StateDiscriminatorBool func(state any) bool

// ApprovalNode suspends execution pending an external human decision, per spec §3.1
// and §4.8.
type ApprovalNode struct {
	// ApproverTypeID identifies which approver role/queue should receive the
	// request.
	ApproverTypeID string

	// Options is the set of decision labels offered to the approver; must be
	// non-empty (verifier rule).
	Options []string

	// EscalationPath runs on an Escalate decision; may itself contain a chained
	// Approval node (spec §4.8: "Escalation may recursively chain").
	EscalationPath []Node

	// RejectionPath runs on a Reject decision before the workflow terminates with
	// outcome rejected. Nil means terminate immediately.
	RejectionPath []Node

	// Timeout, if non-zero, arms a timer; firing with no decision yields
	// ApprovalTimedOut and outcome timed_out.
	Timeout time.Duration
}

// FailureHandlerScope names which enclosing construct a FailureHandlerNode covers,
// per spec §4.4's failure-handler protocol ("fork-path → loop-body → workflow-global").
type FailureHandlerScope int

const (
	ScopeWorkflow FailureHandlerScope = iota
	ScopeForkPath
	ScopeLoopBody
)

// FailureHandlerNode runs when a failure bubbles up to its enclosing Scope without
// being already handled by a narrower scope, per spec §3.1 and §4.4.
type FailureHandlerNode struct {
	Scope FailureHandlerScope

	// Steps is the handler body. If it runs to completion without invoking a
	// terminating action, control rejoins normal flow after the failed step; if it
	// terminates (IsTerminal step, or itself fails), the enclosing scope completes
	// with the corresponding status.
	Steps []Node

	// IsTerminal marks the handler itself as ending its scope on completion
	// (rather than resuming normal flow).
	IsTerminal bool
}

// Helper constructors mirroring the teacher's fluent node-construction idiom
// (graph.Add/StartAt) adapted to the tagged-variant shape above.

func Step(stepTypeID string, opts ...StepOption) Node {
	s := &StepNode{StepTypeID: stepTypeID}
	for _, o := range opts {
		o(s)
	}
	return Node{Kind: KindStep, Step: s}
}

type StepOption func(*StepNode)

func WithInstanceName(name string) StepOption { return func(s *StepNode) { s.InstanceName = name } }
func Terminal() StepOption                    { return func(s *StepNode) { s.IsTerminal = true } }
func Entry() StepOption                       { return func(s *StepNode) { s.IsEntry = true } }

func Branch(discriminatorName string, discriminate StateDiscriminator, rejoinStepID string, cases ...BranchCase) Node {
	return Node{Kind: KindBranch, Branch: &BranchNode{
		DiscriminatorName: discriminatorName,
		Discriminate:      discriminate,
		Cases:             cases,
		RejoinStepID:      rejoinStepID,
	}}
}

func Case(key string, sequence ...Node) BranchCase {
	return BranchCase{Key: key, Sequence: sequence}
}

func Fork(joinStepID string, paths ...[]Node) Node {
	return Node{Kind: KindFork, Fork: &ForkNode{Paths: paths, JoinStepID: joinStepID}}
}

func Loop(name string, exit StateDiscriminatorBool, maxIterations int, body ...Node) Node {
	return Node{Kind: KindLoop, Loop: &LoopNode{
		LoopName:      name,
		ExitPredicate: exit,
		Body:          body,
		MaxIterations: maxIterations,
	}}
}

func Approval(approverTypeID string, options []string, timeout time.Duration) *ApprovalNode {
	return &ApprovalNode{ApproverTypeID: approverTypeID, Options: options, Timeout: timeout}
}

func (a *ApprovalNode) WithEscalation(path ...Node) *ApprovalNode {
	a.EscalationPath = path
	return a
}

func (a *ApprovalNode) WithRejection(path ...Node) *ApprovalNode {
	a.RejectionPath = path
	return a
}

func (a *ApprovalNode) Node() Node {
	return Node{Kind: KindApproval, Approval: a}
}

func FailureHandler(scope FailureHandlerScope, isTerminal bool, steps ...Node) Node {
	return Node{Kind: KindFailureHandler, FailureHandler: &FailureHandlerNode{
		Scope: scope, Steps: steps, IsTerminal: isTerminal,
	}}
}
