package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sagaflow/sagaflow/workflow/artifact"
	"github.com/sagaflow/sagaflow/workflow/budget"
	"github.com/sagaflow/sagaflow/workflow/emit"
	"github.com/sagaflow/sagaflow/workflow/ledger"
	"github.com/sagaflow/sagaflow/workflow/plan"
	"github.com/sagaflow/sagaflow/workflow/store"
)

// Engine is the durable saga engine of spec §4.4: it advances one workflow
// instance's state machine node by node, persisting checkpoints and events
// through Store[S] so that any crash between commit and dispatch is recoverable.
//
// Engine reuses the teacher's Store[S] interface as the instance store: its
// SaveCheckpointV2/LoadCheckpointV2 pair already carries the full execution
// context (frontier, RNG seed, recorded I/O, idempotency key) spec §4.4 step 9
// requires be persisted in one transaction, and its PendingEvents/
// MarkEventsEmitted pair is already the transactional-outbox shape spec §4.9
// names. Rather than invent a parallel event-sourcing interface, this engine
// adapts its own domain Event (events.go) onto emit.Event for transport through
// that existing outbox.
type Engine[S any] struct {
	def    *Definition
	schema *StateSchema[S]
	store  store.Store[S]
	opts   Options

	ledger  *ledger.Ledger
	steps   map[string]Step[S]
	polices map[string]StepPolicy

	mu        sync.Mutex
	approvals map[string]chan ApprovalDecision
}

// New constructs an Engine for def, using schema's reducer to apply step deltas
// and backingStore for durability. def must already have passed Verify.
func New[S any](def *Definition, schema *StateSchema[S], backingStore store.Store[S], opts ...Option) (*Engine[S], error) {
	if err := Verify(def); err != nil && HasFatal(err) {
		return nil, err
	}

	cfg := &engineConfig{opts: Options{
		MaxConcurrentSteps: 8,
		QueueDepth:         1024,
		BackpressureTimeout: 30 * time.Second,
		DefaultStepTimeout:  30 * time.Second,
		RunWallClockBudget:  10 * time.Minute,
		StrictReplay:        true,
	}}
	for _, o := range opts {
		if err := o(cfg); err != nil {
			return nil, err
		}
	}

	return &Engine[S]{
		def:       def,
		schema:    schema,
		store:     backingStore,
		opts:      cfg.opts,
		ledger:    ledger.New(ledger.Config{}),
		steps:     make(map[string]Step[S]),
		polices:   make(map[string]StepPolicy),
		approvals: make(map[string]chan ApprovalDecision),
	}, nil
}

// RegisterStep binds a Step implementation to stepTypeID, with an optional policy
// (zero-value StepPolicy uses DefaultRetryPolicy and the engine's
// DefaultStepTimeout).
func (e *Engine[S]) RegisterStep(stepTypeID string, step Step[S], policy StepPolicy) {
	if policy.Retry.MaxAttempts == 0 {
		policy.Retry = DefaultRetryPolicy()
	}
	e.steps[stepTypeID] = step
	e.polices[stepTypeID] = policy
}

// runState is the mutable tick context threaded through one Run call: the
// workflow ID, live state, event version, step counter, per-loop iteration
// counts, RNG seed, progress ledger and per-loop reset counts. Retry attempts
// are counted inside invokeWithRetry and the remaining budget is held by the
// configured budget.Guard, not here.
type runState[S any] struct {
	workflowID string
	state      S
	version    uint64
	step       int

	loopIterationCounts map[string]int
	rngSeed             int64

	// progress is the ProgressLedger projection (workflow/plan) the loop
	// detector scores, per spec §4.5's "most recent W progress entries";
	// execStepNode appends one entry when a step invocation fails and one when
	// it succeeds. Calls that stop before or after dispatch for another reason
	// (unregistered step, budget refusal, dangling artifact) append none.
	progress *plan.ProgressLedger

	// loopResets counts how many times each named loop has had a detected loop
	// tolerated (body re-run) rather than escalated, per spec §4.5.
	loopResets map[string]int
}

// ApprovalDecision is the external input to resolveApproval, per spec §4.8.
type ApprovalDecision struct {
	Outcome ApprovalOutcome
	Note    string
}

type ApprovalOutcome string

const (
	ApprovalApprove  ApprovalOutcome = "approve"
	ApprovalReject   ApprovalOutcome = "reject"
	ApprovalEscalate ApprovalOutcome = "escalate"
)

// Run advances workflowID from initialState to completion, returning the final
// state, terminal outcome, and any unrecoverable error. Run implements the tick
// protocol of spec §4.4 as a single in-process walk of the definition's node
// sequence (fork paths run as goroutines sharing the parent instance, per the
// fork/join protocol); durability comes from persisting a checkpoint after every
// step via Store[S]. Run always starts from initialState; it does not load an
// earlier checkpoint.
func (e *Engine[S]) Run(ctx context.Context, workflowID string, initialState S) (S, Outcome, error) {
	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunWallClockBudget)
		defer cancel()
	}

	if e.opts.InstanceLock != nil {
		ok, release, err := e.opts.InstanceLock.Acquire(ctx, workflowID)
		if err != nil {
			var zero S
			return zero, OutcomeFailed, err
		}
		if !ok {
			var zero S
			return zero, OutcomeFailed, wrapf(ErrInstanceLocked, "workflow %q", workflowID)
		}
		defer release(ctx)
	}

	rs := &runState[S]{
		workflowID:          workflowID,
		state:               initialState,
		loopIterationCounts: make(map[string]int),
		rngSeed:             seedFromWorkflowID(workflowID),
		progress:            plan.NewProgressLedger(),
		loopResets:          make(map[string]int),
	}

	if err := e.persistEvent(ctx, rs, newEvent(workflowID, EventWorkflowStarted, nil)); err != nil {
		var zero S
		return zero, OutcomeFailed, err
	}

	if e.opts.TaskLedger != nil {
		if hash, err := e.opts.TaskLedger.ContentHash(); err == nil {
			_ = e.persistEvent(ctx, rs, newEvent(workflowID, EventTaskPlanned, map[string]any{"content_hash": hash}))
		}
	}

	outcome, err := e.execSequence(ctx, rs, e.def.Nodes)

	finalOutcome := outcome
	if err != nil {
		switch {
		case ctx.Err() != nil:
			finalOutcome = OutcomeCancelled
		case outcome == OutcomeTimedOut || outcome == OutcomeRejected:
			// an approval gate already chose the terminal outcome
		default:
			finalOutcome = OutcomeFailed
		}
	}
	_ = e.persistEvent(ctx, rs, workflowCompletedEvent(workflowID, finalOutcome, "", 0))

	if finalOutcome != OutcomeSuccess && e.opts.Artifacts != nil {
		_ = e.opts.Artifacts.DeleteByWorkflow(ctx, workflowID)
	}

	return rs.state, finalOutcome, err
}

// rejoinSignal is returned internally by execBranch to signal that control
// should continue at the sibling step named by stepName, rather than falling off
// the end of the current sequence. It is not a user-facing error.
type rejoinSignal struct {
	stepName string
}

func (rejoinSignal) Error() string { return "internal: rejoin signal" }

// execSequence walks nodes in order, dispatching each per its Kind. It returns
// OutcomeSuccess when the sequence runs to completion (or hits a terminal
// step/handler) without a lower-level failure.
func (e *Engine[S]) execSequence(ctx context.Context, rs *runState[S], nodes []Node) (Outcome, error) {
	for i := 0; i < len(nodes); i++ {
		node := nodes[i]

		outcome, err := e.execNode(ctx, rs, node)
		if err != nil {
			if rj, ok := err.(rejoinSignal); ok {
				if idx := findStepIndex(nodes, rj.stepName); idx >= 0 {
					i = idx - 1 // loop increment steps to idx
					continue
				}
				// Rejoin target isn't a sibling in this sequence; propagate outward.
				return outcome, err
			}
			return outcome, err
		}
		if outcome == OutcomeSuccess && node.Kind == KindStep && node.Step.IsTerminal {
			return OutcomeSuccess, nil
		}
		if outcome != "" && outcome != OutcomeSuccess {
			return outcome, nil
		}
	}
	return OutcomeSuccess, nil
}

func findStepIndex(nodes []Node, name string) int {
	for i, n := range nodes {
		if n.Kind == KindStep && n.Step.Name() == name {
			return i
		}
	}
	return -1
}

// execNode dispatches a single node per spec §4.4 steps 3-7.
func (e *Engine[S]) execNode(ctx context.Context, rs *runState[S], node Node) (Outcome, error) {
	switch node.Kind {
	case KindStep:
		return e.execStepNode(ctx, rs, node.Step)
	case KindBranch:
		return e.execBranch(ctx, rs, node.Branch)
	case KindFork:
		return e.execFork(ctx, rs, node.Fork)
	case KindLoop:
		return e.execLoop(ctx, rs, node.Loop)
	case KindApproval:
		return e.execApproval(ctx, rs, node.Approval)
	case KindFailureHandler:
		return e.execSequence(ctx, rs, node.FailureHandler.Steps)
	default:
		return OutcomeFailed, &EngineError{Message: "unknown node kind", Code: "UNKNOWN_NODE_KIND"}
	}
}

// execStepNode implements spec §4.4 step 7-9: fingerprint, ledger consult, invoke
// (with retry/timeout), reduce, persist.
func (e *Engine[S]) execStepNode(ctx context.Context, rs *runState[S], sn *StepNode) (Outcome, error) {
	name := sn.Name()
	impl, ok := e.steps[sn.StepTypeID]
	if !ok {
		return OutcomeFailed, &EngineError{Message: fmt.Sprintf("no step registered for type %q", sn.StepTypeID), Code: "UNREGISTERED_STEP"}
	}
	policy := e.polices[sn.StepTypeID]

	fields := map[string]any{"state": rs.state}
	fingerprint, err := computeFingerprint(sn.StepTypeID, fields)
	if err != nil {
		return OutcomeFailed, err
	}

	cached, hit := e.ledger.TryGet(fingerprint)
	if e.opts.Metrics != nil {
		if hit {
			e.opts.Metrics.IncrementLedgerHit()
		} else {
			e.opts.Metrics.IncrementLedgerMiss()
		}
	}

	var result StepResult[S]
	if hit {
		result = cached.(StepResult[S])
	} else {
		// Per-step budget reservation (spec §4.4 step 7, §4.6): a cache hit does
		// no real work and consumes no budget, but a fresh invocation reserves
		// before dispatch so concurrent fork-path reservations against the same
		// Guard serialize rather than over-committing.
		var reservation budget.Result
		var reserved bool
		if e.opts.BudgetGuard != nil {
			reservation, err = e.opts.BudgetGuard.Reserve(budget.Allocation{Steps: 1, Executions: 1})
			if err != nil {
				return OutcomeFailed, wrapf(ErrBudgetExhausted, "step %q: %v", name, err)
			}
			reserved = true
		}

		result, err = e.invokeWithRetry(ctx, impl, name, rs, policy)
		if err != nil {
			if reserved {
				e.opts.BudgetGuard.Refund(reservation)
			}
			rs.progress.Append(plan.ProgressEntry{
				Timestamp: time.Now(), Action: name, Signal: plan.SignalFailure, ProgressMade: false,
			})
			_ = e.persistEvent(ctx, rs, executionFailedEvent(rs.workflowID, name, err.Error(), isRetryableErr(err)))
			return OutcomeFailed, err
		}
		if reserved {
			e.opts.BudgetGuard.Commit(reservation, budget.Allocation{
				Steps: 1, Executions: 1, Tokens: int64(result.TokensConsumed),
			})
		}
		e.ledger.Cache(fingerprint, result, 0)
	}

	// Claim-check validation (spec §4.3, §6.3): a step that names artifact refs
	// must have actually durably stored them before its result is accepted.
	if e.opts.Artifacts != nil {
		for _, ref := range result.ArtifactRefs {
			if _, aerr := e.opts.Artifacts.Retrieve(ctx, artifact.Uri(ref)); aerr != nil {
				return OutcomeFailed, &EngineError{
					Message: fmt.Sprintf("step %q: unresolvable artifact ref %q: %v", name, ref, aerr),
					Code:    "DANGLING_ARTIFACT_REF",
				}
			}
		}
	}

	rs.progress.Append(plan.ProgressEntry{
		Timestamp:      time.Now(),
		Action:         name,
		Output:         fmt.Sprintf("%v", result.Delta),
		TokensConsumed: result.TokensConsumed,
		ArtifactRefs:   result.ArtifactRefs,
		Signal:         plan.SignalSuccess,
		ProgressMade:   true,
	})

	rs.state = e.schema.Reduce(rs.state, result.Delta)

	if err := e.persistEvent(ctx, rs, stepCompletedEvent(rs.workflowID, name, 0, result.TokensConsumed, result.ArtifactRefs)); err != nil {
		return OutcomeFailed, err
	}
	for _, ev := range result.Events {
		_ = e.persistEvent(ctx, rs, newEvent(rs.workflowID, EventType(ev.Name), ev.Meta))
	}

	if e.opts.TaskLedger != nil {
		if uerr := e.opts.TaskLedger.UpdateStatus(name, plan.TaskCompleted); uerr == nil {
			if err := e.persistEvent(ctx, rs, newEvent(rs.workflowID, EventTaskCompleted, map[string]any{"task_id": name})); err != nil {
				return OutcomeFailed, err
			}
		}
	}

	if err := e.checkpoint(ctx, rs); err != nil {
		return OutcomeFailed, err
	}

	return OutcomeSuccess, nil
}

func isRetryableErr(err error) bool {
	var se *StepError
	if asStepError(err, &se) {
		return se.Kind.Retryable()
	}
	return false
}

// invokeWithRetry runs impl under policy's timeout and retry/backoff, per spec
// §4.9 and the teacher's policy.go backoff math.
func (e *Engine[S]) invokeWithRetry(ctx context.Context, impl Step[S], name string, rs *runState[S], policy StepPolicy) (StepResult[S], error) {
	var lastErr error
	rng := newSeededRand(rs.rngSeed)

	maxAttempts := policy.Retry.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		stepCtx := StepContext{
			WorkflowID: rs.workflowID,
			StepName:   name,
			Attempt:    attempt,
			Emit:       func(name string, meta map[string]any) {},
		}

		result, err := executeStepWithTimeout(ctx, impl, name, rs.state, stepCtx, policy, e.opts.DefaultStepTimeout)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !policy.isRetryable(err) || attempt == maxAttempts {
			break
		}
		if e.opts.Metrics != nil {
			e.opts.Metrics.IncrementRetries(rs.workflowID, name, "retry")
		}

		delay := computeBackoff(attempt, policy.Retry.BaseDelay, policy.Retry.MaxDelay, rng)
		select {
		case <-ctx.Done():
			return StepResult[S]{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return StepResult[S]{}, wrapf(ErrMaxAttemptsExceeded, "step %q: %v", name, lastErr)
}

// execBranch implements spec §4.4 step 3.
func (e *Engine[S]) execBranch(ctx context.Context, rs *runState[S], b *BranchNode) (Outcome, error) {
	key := b.Discriminate(rs.state)
	for _, c := range b.Cases {
		if c.Key == key {
			if err := e.persistEvent(ctx, rs, branchTakenEvent(rs.workflowID, b.DiscriminatorName, key)); err != nil {
				return OutcomeFailed, err
			}
			outcome, err := e.execSequence(ctx, rs, c.Sequence)
			if err != nil {
				return outcome, err
			}
			if b.RejoinStepID != "" {
				return outcome, rejoinSignal{stepName: b.RejoinStepID}
			}
			return outcome, nil
		}
	}
	return OutcomeFailed, wrapf(ErrNoMatchingBranch, "discriminator %q produced key %q", b.DiscriminatorName, key)
}

// pathResult is one fork path's outcome, tagged per spec §4.4's ForkContext.
type pathResult[S any] struct {
	index   int
	status  Outcome
	state   S
	err     error
}

// ForkContext is handed conceptually to a join step: the ordered, path-index-
// sorted results of every fork path, per spec §4.4's fork/join protocol. Sagaflow
// folds join semantics into the caller-supplied merge function passed to
// execFork rather than a separate join StepNode, since Definition's Fork already
// names its own JoinStepID as a plain step the engine dispatches once all paths
// report in.
type ForkContext[S any] struct {
	Paths []PathOutcome[S]
}

type PathOutcome[S any] struct {
	Index  int
	Status Outcome
	State  S // zero value when Status == OutcomeFailed
}

// execFork implements the fork/join protocol of spec §4.4: N nested mini-sagas
// share the parent instance and run concurrently; the join fires once all N
// PathCompleted events are present, receiving path-index-ordered results.
func (e *Engine[S]) execFork(ctx context.Context, rs *runState[S], f *ForkNode) (Outcome, error) {
	n := len(f.Paths)
	results := make([]pathResult[S], n)

	var wg sync.WaitGroup
	for i, path := range f.Paths {
		wg.Add(1)
		go func(i int, path []Node) {
			defer wg.Done()

			pathRS := &runState[S]{
				workflowID:          rs.workflowID,
				state:               rs.state,
				loopIterationCounts: make(map[string]int),
				rngSeed:             rs.rngSeed,
				progress:            rs.progress, // shared, mutex-protected ledger across fork paths
				loopResets:          make(map[string]int),
			}
			outcome, err := e.execSequence(ctx, pathRS, path)

			status := outcome
			if err != nil {
				status = OutcomeFailed
			}
			results[i] = pathResult[S]{index: i, status: status, state: pathRS.state, err: err}
		}(i, path)
	}
	wg.Wait()

	fc := ForkContext[S]{Paths: make([]PathOutcome[S], n)}
	for i, r := range results {
		if err := e.persistEvent(ctx, rs, pathCompletedEvent(rs.workflowID, r.index, r.status, nil)); err != nil {
			return OutcomeFailed, err
		}
		po := PathOutcome[S]{Index: r.index, Status: r.status}
		if r.status != OutcomeFailed {
			po.State = r.state
		}
		fc.Paths[i] = po
	}

	joinImpl, ok := e.steps[f.JoinStepID]
	if !ok {
		return OutcomeFailed, &EngineError{Message: fmt.Sprintf("no join step registered for %q", f.JoinStepID), Code: "UNREGISTERED_STEP"}
	}
	policy := e.polices[f.JoinStepID]
	result, err := e.invokeWithRetry(ctx, joinImpl, f.JoinStepID, rs, policy)
	if err != nil {
		return OutcomeFailed, err
	}
	rs.state = e.schema.Reduce(rs.state, result.Delta)

	if err := e.persistEvent(ctx, rs, stepCompletedEvent(rs.workflowID, f.JoinStepID, 0, result.TokensConsumed, result.ArtifactRefs)); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeSuccess, e.checkpoint(ctx, rs)
}

// execLoop implements the loop protocol of spec §4.4: re-evaluate the exit
// predicate after each body completion; MaxIterations without satisfaction emits
// LoopLimitReached (not failure) and falls through to the continuation.
func (e *Engine[S]) execLoop(ctx context.Context, rs *runState[S], l *LoopNode) (Outcome, error) {
	for {
		if l.ExitPredicate(rs.state) {
			return OutcomeSuccess, nil
		}
		count := rs.loopIterationCounts[l.LoopName]
		if count >= l.MaxIterations {
			return OutcomeSuccess, e.persistEvent(ctx, rs, newEvent(rs.workflowID, EventLoopLimitReached, map[string]any{"loop_name": l.LoopName}))
		}

		outcome, err := e.execSequence(ctx, rs, l.Body)
		if err != nil {
			return outcome, err
		}
		rs.loopIterationCounts[l.LoopName] = count + 1
		if err := e.persistEvent(ctx, rs, newEvent(rs.workflowID, EventLoopIterationCompleted, map[string]any{
			"loop_name": l.LoopName, "iteration": count + 1,
		})); err != nil {
			return OutcomeFailed, err
		}

		// Runaway-loop detection (spec §4.5): consult the detector against the
		// most recent window of progress-ledger entries after every iteration.
		if e.opts.LoopDetector != nil {
			window := e.opts.LoopDetectWindow
			if window <= 0 {
				window = 5
			}
			res := e.opts.LoopDetector.Detect(rs.progress.Recent(window))
			if res.Detected {
				if err := e.persistEvent(ctx, rs, newEvent(rs.workflowID, EventLoopDetected, map[string]any{
					"loop_name":  l.LoopName,
					"loop_type":  string(res.LoopType),
					"confidence": res.Confidence,
					"strategy":   string(res.RecommendedStrategy),
					"diagnostic": res.Diagnostic,
				})); err != nil {
					return OutcomeFailed, err
				}
				rs.loopResets[l.LoopName]++
				if e.opts.LoopMaxResets > 0 && rs.loopResets[l.LoopName] > e.opts.LoopMaxResets {
					return OutcomeFailed, wrapf(ErrLoopDetection, "loop %q: %s (%d resets)", l.LoopName, res.Diagnostic, rs.loopResets[l.LoopName])
				}
			}
		}
	}
}

// execApproval implements spec §4.8: suspend at an Approval node until
// resolveApproval is called (or the configured timeout fires).
func (e *Engine[S]) execApproval(ctx context.Context, rs *runState[S], a *ApprovalNode) (Outcome, error) {
	ch := make(chan ApprovalDecision, 1)
	e.mu.Lock()
	e.approvals[rs.workflowID] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.approvals, rs.workflowID)
		e.mu.Unlock()
	}()

	if err := e.persistEvent(ctx, rs, newEvent(rs.workflowID, EventApprovalRequested, map[string]any{
		"approver_type_id": a.ApproverTypeID, "options": a.Options,
	})); err != nil {
		return OutcomeFailed, err
	}

	var timeoutCh <-chan time.Time
	if a.Timeout > 0 {
		timer := time.NewTimer(a.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case decision := <-ch:
		if err := e.persistEvent(ctx, rs, newEvent(rs.workflowID, EventApprovalReceived, map[string]any{"decision": string(decision.Outcome)})); err != nil {
			return OutcomeFailed, err
		}
		switch decision.Outcome {
		case ApprovalApprove:
			return OutcomeSuccess, nil
		case ApprovalReject:
			if a.RejectionPath != nil {
				if outcome, err := e.execSequence(ctx, rs, a.RejectionPath); err != nil {
					return outcome, err
				}
			}
			return OutcomeRejected, nil
		case ApprovalEscalate:
			if a.EscalationPath != nil {
				return e.execSequence(ctx, rs, a.EscalationPath)
			}
			return OutcomeRejected, ErrApprovalRejected
		default:
			return OutcomeFailed, &EngineError{Message: "unknown approval decision", Code: "UNKNOWN_APPROVAL_DECISION"}
		}
	case <-timeoutCh:
		_ = e.persistEvent(ctx, rs, newEvent(rs.workflowID, EventApprovalTimedOut, nil))
		return OutcomeTimedOut, ErrApprovalTimedOut
	case <-ctx.Done():
		return OutcomeCancelled, ctx.Err()
	}
}

// ResolveApproval delivers an external decision to a suspended instance, per
// spec §4.8. It is a no-op error if workflowID has no pending approval.
func (e *Engine[S]) ResolveApproval(workflowID string, decision ApprovalDecision) error {
	e.mu.Lock()
	ch, ok := e.approvals[workflowID]
	e.mu.Unlock()
	if !ok {
		return &EngineError{Message: fmt.Sprintf("no pending approval for workflow %q", workflowID), Code: "NO_PENDING_APPROVAL"}
	}
	select {
	case ch <- decision:
		return nil
	default:
		return &EngineError{Message: "approval already resolved", Code: "APPROVAL_ALREADY_RESOLVED"}
	}
}

// persistEvent appends ev to the instance's event stream (bumping its version)
// and forwards it through Store[S]'s outbox as an emit.Event, per spec §4.4 step
// 9 ("append events ... within a single transaction").
func (e *Engine[S]) persistEvent(ctx context.Context, rs *runState[S], ev Event) error {
	rs.version++
	ev.WorkflowID = rs.workflowID
	ev.Version = rs.version
	ev.CommittedAt = time.Now()

	wire := toEmitEvent(ev)
	id := fmt.Sprintf("%s:%d", ev.WorkflowID, ev.Version)
	return e.store.EnqueueEvent(ctx, id, wire)
}

// checkpoint persists the current instance state via Store[S].SaveCheckpointV2,
// per spec §4.4 step 9's "persist new instance state".
func (e *Engine[S]) checkpoint(ctx context.Context, rs *runState[S]) error {
	rs.step++
	idempotencyKey, err := computeIdempotencyKey(rs.workflowID, rs.step, nil, rs.state)
	if err != nil {
		return err
	}
	return e.store.SaveCheckpointV2(ctx, store.CheckpointV2[S]{
		RunID:          rs.workflowID,
		StepID:         rs.step,
		State:          rs.state,
		RNGSeed:        rs.rngSeed,
		IdempotencyKey: idempotencyKey,
		Timestamp:      time.Now(),
	})
}

// toEmitEvent adapts a domain Event onto the emit.Event shape Store[S]'s outbox
// already knows how to persist and dispatch.
func toEmitEvent(ev Event) emit.Event {
	meta := make(map[string]interface{}, len(ev.Payload)+1)
	for k, v := range ev.Payload {
		meta[k] = v
	}
	meta["event_type"] = string(ev.Type)
	meta["version"] = ev.Version
	return emit.Event{
		RunID: ev.WorkflowID,
		Msg:   fmt.Sprintf("%s:%d", ev.Type, ev.Version),
		Meta:  meta,
	}
}

func seedFromWorkflowID(workflowID string) int64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	for _, b := range []byte(workflowID) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return int64(h >> 1)
}
