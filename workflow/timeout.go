package workflow

import (
	"context"
	"fmt"
	"time"
)

// executeStepWithTimeout wraps a step invocation with timeout enforcement, per
// spec §5 ("Timeouts. Per-step soft timeout surfaces to the retry policy").
// Grounded on the teacher's graph/timeout.go executeNodeWithTimeout: precedence is
// resolved by getStepTimeout (per-step override, else engine default, else
// unlimited), and a deadline exceeded is mapped to an *EngineError so it flows
// through the same retry classification as any other step failure.
func executeStepWithTimeout[S any](
	ctx context.Context,
	step Step[S],
	stepID string,
	state S,
	stepCtx StepContext,
	policy StepPolicy,
	defaultTimeout time.Duration,
) (StepResult[S], error) {
	timeout := getStepTimeout(policy, defaultTimeout)

	if timeout == 0 {
		return step.Execute(ctx, state, stepCtx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := step.Execute(timeoutCtx, state, stepCtx)
	if timeoutCtx.Err() == context.DeadlineExceeded {
		return result, &EngineError{
			Message: fmt.Sprintf("step %s exceeded timeout of %v", stepID, timeout),
			Code:    "STEP_TIMEOUT",
			Cause:   err,
		}
	}
	return result, err
}
