// Package workflow provides the core graph compiler and durable saga engine
// for event-sourced, LLM-driven workflow orchestration.
package workflow

import "errors"

// ErrReplayMismatch is returned when recorded I/O hash does not match current execution during replay.
// This indicates non-deterministic behavior in a step (e.g., random values, system time, or external state).
var ErrReplayMismatch = errors.New("replay mismatch: recorded I/O hash mismatch")

// ErrNoProgress is returned when the scheduler detects a deadlock condition: the frontier
// queue is empty but no nodes are actively running, meaning the instance cannot advance.
var ErrNoProgress = errors.New("no progress: no runnable nodes in frontier")

// ErrBackpressureTimeout is returned when the frontier queue remains full beyond the configured timeout.
var ErrBackpressureTimeout = errors.New("backpressure timeout: frontier queue full")

// ErrIdempotencyViolation is returned when attempting to commit a checkpoint with a
// duplicate idempotency key; the checkpoint was already committed by a previous tick.
var ErrIdempotencyViolation = errors.New("idempotency violation: checkpoint already committed")

// ErrMaxAttemptsExceeded is returned when a step fails more times than its retry policy allows.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// ErrMaxStepsExceeded indicates that execution reached the maximum allowed step count
// without completing. This prevents infinite loops and runaway executions.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrNoMatchingBranch is returned when a Branch node's discriminator does not match
// any declared case key and no default case was configured. Per spec §4.4 step 3 this
// is fatal.
var ErrNoMatchingBranch = errors.New("no matching branch case for discriminator")

// ErrInvalidRetryPolicy indicates a RetryPolicy fails validation (MaxAttempts < 1, or
// MaxDelay < BaseDelay when both are set).
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ErrGraphInvalid indicates the graph verifier found at least one fatal diagnostic;
// see Diagnostics() on the returned *VerifyError for the full list.
var ErrGraphInvalid = errors.New("workflow graph failed verification")

// ErrBudgetExhausted is returned by the budget guard when a reservation would drive
// any dimension negative. No partial consumption occurs.
var ErrBudgetExhausted = errors.New("budget exhausted")

// ErrLoopDetection is returned when the engine escalates after exceeding maxResets
// for a detected loop. It terminates the workflow without invoking failure handlers.
var ErrLoopDetection = errors.New("aborted: unresolved execution loop")

// ErrInstanceLocked is returned by Run when the configured InstanceLock could not
// be acquired, meaning another process already holds the advisory lock for this
// workflow instance.
var ErrInstanceLocked = errors.New("workflow instance locked by another process")

// ErrApprovalTimedOut is returned when an approval node's timer fires with no decision.
var ErrApprovalTimedOut = errors.New("approval timed out")

// ErrApprovalRejected is returned when an approval decision is Escalate and the node
// has no EscalationPath. A Reject decision ends the run with outcome rejected and no error.
var ErrApprovalRejected = errors.New("approval rejected")

// ErrorKind classifies errors surfaced to callers and persisted in events, per spec §7.
type ErrorKind string

// Error kinds from spec §7. Retryable kinds are retried per the active RetryPolicy;
// the rest either surface immediately or route straight to a failure handler.
const (
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindConflict           ErrorKind = "conflict"
	KindBudgetExhausted    ErrorKind = "budget_exhausted"
	KindRateLimited        ErrorKind = "rate_limited"
	KindNetwork            ErrorKind = "network"
	KindTimeout            ErrorKind = "timeout"
	KindBadGateway         ErrorKind = "bad_gateway"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindExternal           ErrorKind = "external"
	KindLoopDetection      ErrorKind = "loop_detection"
	KindInternal           ErrorKind = "internal"
)

// Retryable reports whether errors of this kind should be retried per the default
// classification policy (a step may still override via its own RetryPolicy.Retryable).
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindNetwork, KindTimeout, KindBadGateway, KindServiceUnavailable:
		return true
	default:
		return false
	}
}

// StepError wraps a step-level failure with its classification and originating node,
// mirroring the teacher's NodeError but carrying the ErrorKind taxonomy from spec §7.
type StepError struct {
	// Message is the human-readable error description.
	Message string

	// Kind classifies the error for retry/handler routing.
	Kind ErrorKind

	// StepID identifies which step produced this error.
	StepID string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *StepError) Unwrap() error {
	return e.Cause
}

// EngineError represents a structured orchestrator-level failure (as opposed to a
// step-level StepError), e.g. exceeding MaxSteps or a malformed graph reference.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	return e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}
