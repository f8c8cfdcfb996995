package workflow

import (
	"context"
	"math/rand"
	"testing"

	"github.com/sagaflow/sagaflow/workflow/bandit"
	"github.com/sagaflow/sagaflow/workflow/store"
)

type taggingAgent struct {
	tag   string
	fails bool
}

func (a taggingAgent) Execute(_ context.Context, s counterState, _ StepContext) (StepResult[counterState], error) {
	if a.fails {
		return StepResult[counterState]{}, &StepError{Kind: KindValidation, Message: "agent failed"}
	}
	return StepResult[counterState]{Delta: counterState{Count: s.Count + 1, Done: s.Done}}, nil
}

func TestAgentPoolSelectsAndRecordsOutcome(t *testing.T) {
	schema := counterSchema(t)
	def := NewDefinition("test", "agent-pool-flow", schema.ID(),
		Step("pick-agent", Terminal()),
	)

	backingStore := store.NewMemStore[counterState]()
	e, err := New(def, schema, backingStore)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	selector := bandit.New(bandit.DefaultPrior(), rand.New(rand.NewSource(42)))
	pool := NewAgentPool[counterState](selector, func(counterState) string { return "implement a feature" },
		map[string]Step[counterState]{
			"agent-a": taggingAgent{tag: "a"},
			"agent-b": taggingAgent{tag: "b"},
		})
	e.RegisterStep("pick-agent", pool, StepPolicy{})

	finalState, outcome, err := e.Run(context.Background(), "run-agent-pool", counterState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeSuccess {
		t.Fatalf("expected success outcome, got %s", outcome)
	}
	if finalState.Count != 1 {
		t.Fatalf("expected the selected agent to increment once, got count %d", finalState.Count)
	}
}

func TestAgentPoolReturnsErrorWithNoCandidates(t *testing.T) {
	selector := bandit.New(bandit.DefaultPrior(), rand.New(rand.NewSource(1)))
	pool := NewAgentPool[counterState](selector, nil, map[string]Step[counterState]{})

	_, err := pool.Execute(context.Background(), counterState{}, StepContext{})
	if err == nil {
		t.Fatal("expected an error selecting from an empty candidate pool")
	}
}
