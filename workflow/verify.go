package workflow

import "fmt"

// Severity classifies a Diagnostic. Fatal diagnostics block a graph from being
// executable; warnings are surfaced but the graph still runs, per spec §4.1.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityFatal
)

func (s Severity) String() string {
	if s == SeverityFatal {
		return "fatal"
	}
	return "warning"
}

// Diagnostic is a single verifier finding, identified by the code table in spec
// §3.1. Codes are internal identifiers for a validation rule, not prose references
// to any external document.
type Diagnostic struct {
	Code     string
	Severity Severity
	Location string
	Detail   string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s at %s: %s", d.Code, d.Severity, d.Location, d.Detail)
}

// VerifyError wraps ErrGraphInvalid with the full diagnostic set from a failed
// verification. Callers inspect Diagnostics() for the complete list, fatal and
// warning alike.
type VerifyError struct {
	diags []Diagnostic
}

func (e *VerifyError) Error() string {
	fatal := 0
	for _, d := range e.diags {
		if d.Severity == SeverityFatal {
			fatal++
		}
	}
	return fmt.Sprintf("workflow graph failed verification: %d fatal diagnostic(s), %d total", fatal, len(e.diags))
}

func (e *VerifyError) Unwrap() error { return ErrGraphInvalid }

// Diagnostics returns every diagnostic collected during verification, in traversal
// order.
func (e *VerifyError) Diagnostics() []Diagnostic { return e.diags }

// verifier carries the mutable state of a single depth-first traversal: a
// path-scoped set of step-instance names (reset per mutually-exclusive branch arm,
// per AGWF003), an explicit fork/join expected-frame stack, and an explicit
// loop-frame stack. Both stacks are explicit slices rather than recursion over
// owning references, per Design Note §9 ("the loop/fork stacks in verification and
// execution are explicit frames, not recursion over owning references").
type verifier struct {
	diags     []Diagnostic
	forkStack []forkFrame
	loopStack []loopFrame
}

type forkFrame struct {
	joinStepID  string
	pathCount   int
	location    string
}

type loopFrame struct {
	loopName string
	location string
}

func (v *verifier) fatal(code, location, detail string) {
	v.diags = append(v.diags, Diagnostic{Code: code, Severity: SeverityFatal, Location: location, Detail: detail})
}

func (v *verifier) warn(code, location, detail string) {
	v.diags = append(v.diags, Diagnostic{Code: code, Severity: SeverityWarning, Location: location, Detail: detail})
}

// Verify runs the single depth-first traversal described in spec §4.1 over def and
// returns a *VerifyError if any diagnostic (fatal or warning) was found, nil
// otherwise. Callers distinguish fatal from advisory via VerifyError.Diagnostics and
// each Diagnostic's Severity; HasFatal reports whether the graph is blocked from
// running.
func Verify(def *Definition) error {
	v := &verifier{}

	if def.Name == "" {
		v.fatal("AGWF001", "workflow", "workflow name must be non-empty")
	}
	if def.Namespace == "" {
		v.fatal("AGWF004", "workflow", "workflow must be declared in a named namespace")
	}
	if len(def.Nodes) == 0 {
		v.warn("AGWF002", "workflow", "workflow contains no steps")
	}

	if len(def.Nodes) > 0 {
		if first := def.Nodes[0]; first.Kind != KindStep || !first.Step.IsEntry {
			v.fatal("AGWF009", "workflow[0]", "first node must be a Step marked as entry")
		}
	}

	names := map[string]bool{}
	v.walkSequence(def.Nodes, names, "workflow")

	if len(v.forkStack) != 0 {
		for _, f := range v.forkStack {
			v.fatal("AGWF012", f.location, "fork has no matching join")
		}
	}

	if len(def.Nodes) > 0 {
		last := def.Nodes[len(def.Nodes)-1]
		if last.Kind != KindStep || !last.Step.IsTerminal {
			v.warn("AGWF010", "workflow[last]", "last reachable node is not a terminal step")
		}
	}

	if len(v.diags) == 0 {
		return nil
	}
	return &VerifyError{diags: v.diags}
}

// HasFatal reports whether err (as returned by Verify) contains at least one fatal
// diagnostic. A nil err has none.
func HasFatal(err error) bool {
	ve, ok := err.(*VerifyError)
	if !ok || ve == nil {
		return false
	}
	for _, d := range ve.diags {
		if d.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// walkSequence traverses one linear node sequence, threading a path-scoped name set
// so AGWF003 only flags duplicates within a single linear path; sibling branch arms
// and fork paths each get their own copy of names, matching the spec's explicit carve-out
// ("duplicates in mutually exclusive branch/case paths are permitted").
func (v *verifier) walkSequence(nodes []Node, names map[string]bool, location string) {
	for i, n := range nodes {
		switch n.Kind {
		case KindStep:
			name := n.Step.Name()
			if names[name] {
				v.fatal("AGWF003", fmt.Sprintf("%s[%d]", location, i), fmt.Sprintf("duplicate step instance name %q in path", name))
			}
			names[name] = true

		case KindBranch:
			for _, c := range n.Branch.Cases {
				branchNames := cloneNameSet(names)
				v.walkSequence(c.Sequence, branchNames, fmt.Sprintf("%s[%d]/case(%s)", location, i, c.Key))
			}

		case KindFork:
			v.forkStack = append(v.forkStack, forkFrame{
				joinStepID: n.Fork.JoinStepID,
				pathCount:  len(n.Fork.Paths),
				location:   fmt.Sprintf("%s[%d]", location, i),
			})
			for pi, path := range n.Fork.Paths {
				pathNames := cloneNameSet(names)
				v.walkSequence(path, pathNames, fmt.Sprintf("%s[%d]/path(%d)", location, i, pi))
			}
			v.forkStack = v.forkStack[:len(v.forkStack)-1]
			if n.Fork.JoinStepID == "" {
				v.fatal("AGWF012", fmt.Sprintf("%s[%d]", location, i), "fork has no join step id configured")
			}

		case KindLoop:
			if len(n.Loop.Body) == 0 {
				v.fatal("AGWF014", fmt.Sprintf("%s[%d]", location, i), fmt.Sprintf("loop %q has empty body", n.Loop.LoopName))
			}
			v.loopStack = append(v.loopStack, loopFrame{loopName: n.Loop.LoopName, location: fmt.Sprintf("%s[%d]", location, i)})
			bodyNames := cloneNameSet(names)
			v.walkSequence(n.Loop.Body, bodyNames, fmt.Sprintf("%s[%d]/body", location, i))
			v.loopStack = v.loopStack[:len(v.loopStack)-1]

		case KindApproval:
			if len(n.Approval.Options) == 0 {
				v.fatal("AGWF009", fmt.Sprintf("%s[%d]", location, i), "approval node must declare at least one option")
			}
			if n.Approval.EscalationPath != nil {
				v.walkSequence(n.Approval.EscalationPath, cloneNameSet(names), fmt.Sprintf("%s[%d]/escalation", location, i))
			}
			if n.Approval.RejectionPath != nil {
				v.walkSequence(n.Approval.RejectionPath, cloneNameSet(names), fmt.Sprintf("%s[%d]/rejection", location, i))
			}

		case KindFailureHandler:
			v.walkSequence(n.FailureHandler.Steps, cloneNameSet(names), fmt.Sprintf("%s[%d]/handler", location, i))
		}
	}
}

func cloneNameSet(names map[string]bool) map[string]bool {
	cp := make(map[string]bool, len(names))
	for k, v := range names {
		cp[k] = v
	}
	return cp
}
