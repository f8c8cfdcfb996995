package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/sagaflow/sagaflow/workflow/bandit"
)

// AgentPool adapts the Thompson-sampling agent selector (workflow/bandit, spec
// §4.7) into an ordinary Step[S]: it can be RegisterStep'd and dispatched exactly
// like any other step, keeping step.go's "a step never invokes the engine
// directly" design note intact, since the selector itself never reaches back into
// the saga tick. Execute samples a candidate per the state's task description,
// delegates to it, and records the outcome back into the selector's belief store.
type AgentPool[S any] struct {
	candidates      map[string]Step[S]
	order           []string
	selector        *bandit.Selector
	taskDescription func(S) string
}

// NewAgentPool constructs a pool selecting among candidates (keyed by agent ID)
// via selector. taskDescription extracts the free-text description Select uses to
// classify the task category (spec §4.7 step 1); a nil taskDescription always
// classifies as bandit.CategoryGeneral.
func NewAgentPool[S any](selector *bandit.Selector, taskDescription func(S) string, candidates map[string]Step[S]) *AgentPool[S] {
	order := make([]string, 0, len(candidates))
	for id := range candidates {
		order = append(order, id)
	}
	sort.Strings(order)
	return &AgentPool[S]{
		candidates:      candidates,
		order:           order,
		selector:        selector,
		taskDescription: taskDescription,
	}
}

// Execute implements Step[S]: select, delegate, record.
func (p *AgentPool[S]) Execute(ctx context.Context, state S, stepCtx StepContext) (StepResult[S], error) {
	desc := ""
	if p.taskDescription != nil {
		desc = p.taskDescription(state)
	}

	selection := p.selector.Select(p.order, desc, nil)
	if selection.AgentID == "" {
		return StepResult[S]{}, &EngineError{Message: "agent pool: no candidate available", Code: "NO_AGENT_CANDIDATE"}
	}
	impl, ok := p.candidates[selection.AgentID]
	if !ok {
		return StepResult[S]{}, &EngineError{Message: fmt.Sprintf("agent pool: selected unknown agent %q", selection.AgentID), Code: "UNKNOWN_AGENT"}
	}

	result, err := impl.Execute(ctx, state, stepCtx)

	confidence := 1.0
	if err != nil {
		confidence = 0.0
	}
	p.selector.RecordOutcome(selection.AgentID, selection.Category, confidence)

	return result, err
}
