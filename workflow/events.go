package workflow

import "time"

// Outcome is the terminal status of a workflow instance, a fork path, or a loop
// continuation, per spec §6.4.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeRejected  Outcome = "rejected"
	OutcomeTimedOut  Outcome = "timed_out"
)

// EventType names one of the persisted event kinds of spec §6.4.
type EventType string

const (
	EventWorkflowStarted          EventType = "WorkflowStarted"
	EventPhaseChanged             EventType = "PhaseChanged"
	EventStepCompleted            EventType = "StepCompleted"
	EventBranchTaken              EventType = "BranchTaken"
	EventLoopIterationCompleted   EventType = "LoopIterationCompleted"
	EventLoopLimitReached         EventType = "LoopLimitReached"
	EventPathCompleted            EventType = "PathCompleted"
	EventApprovalRequested        EventType = "ApprovalRequested"
	EventApprovalReceived         EventType = "ApprovalReceived"
	EventApprovalTimedOut         EventType = "ApprovalTimedOut"
	EventExecutionFailed          EventType = "ExecutionFailed"
	EventLoopDetected             EventType = "LoopDetected"
	EventRecoveryStrategyApplied  EventType = "RecoveryStrategyApplied"
	EventTaskPlanned              EventType = "TaskPlanned"
	EventTaskCompleted            EventType = "TaskCompleted"
	EventWorkflowCompleted        EventType = "WorkflowCompleted"
)

// Event is one committed entry in a workflow instance's event stream (spec §6.5
// workflow_events table). Payload carries the event-specific fields documented per
// EventType below; Version is the per-instance monotonic sequence number (spec §4.4
// "Ordering": "events are totally ordered by a per-instance monotonic version").
type Event struct {
	WorkflowID  string
	Version     uint64
	Type        EventType
	Payload     map[string]any
	CommittedAt time.Time
}

// Payload field helpers for constructing the well-known event shapes of spec §6.4.
// These are thin constructors, not a schema-enforcing layer: Payload remains a plain
// map so the event store can serialize it uniformly regardless of EventType.

func newEvent(workflowID string, typ EventType, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{WorkflowID: workflowID, Type: typ, Payload: payload}
}

func stepCompletedEvent(workflowID, stepID string, duration time.Duration, tokens int, artifacts []string) Event {
	return newEvent(workflowID, EventStepCompleted, map[string]any{
		"step_id":     stepID,
		"duration_ms": duration.Milliseconds(),
		"tokens":      tokens,
		"artifacts":   artifacts,
	})
}

func branchTakenEvent(workflowID, branchID, caseKey string) Event {
	return newEvent(workflowID, EventBranchTaken, map[string]any{
		"branch_id": branchID,
		"case_key":  caseKey,
	})
}

func pathCompletedEvent(workflowID string, pathIndex int, status Outcome, state any) Event {
	return newEvent(workflowID, EventPathCompleted, map[string]any{
		"path_index": pathIndex,
		"status":     string(status),
		"state":      state,
	})
}

func executionFailedEvent(workflowID, stepID, reason string, recoverable bool) Event {
	return newEvent(workflowID, EventExecutionFailed, map[string]any{
		"step_id":     stepID,
		"reason":      reason,
		"recoverable": recoverable,
	})
}

func workflowCompletedEvent(workflowID string, outcome Outcome, finalAnswer string, totalDuration time.Duration) Event {
	return newEvent(workflowID, EventWorkflowCompleted, map[string]any{
		"outcome":        string(outcome),
		"final_answer":   finalAnswer,
		"total_duration_ms": totalDuration.Milliseconds(),
	})
}
