package workflow

import (
	"time"

	"github.com/sagaflow/sagaflow/workflow/artifact"
	"github.com/sagaflow/sagaflow/workflow/budget"
	"github.com/sagaflow/sagaflow/workflow/ledger"
	"github.com/sagaflow/sagaflow/workflow/loopdetect"
	"github.com/sagaflow/sagaflow/workflow/plan"
)

// Option configures an Engine at construction time. Grounded on the teacher's
// functional-option pattern in graph/options.go; kept as func(*engineConfig) error
// so options can fail validation (e.g. an unsupported ConflictPolicy) without a
// panic.
type Option func(*engineConfig) error

type engineConfig struct {
	opts Options
}

// Options collects engine-wide defaults. Any Option overrides the corresponding
// field; fields left zero take the defaults documented on each With* function.
type Options struct {
	MaxSteps            int
	MaxConcurrentSteps   int
	QueueDepth           int
	BackpressureTimeout  time.Duration
	DefaultStepTimeout   time.Duration
	RunWallClockBudget   time.Duration
	ReplayMode           bool
	StrictReplay         bool
	ConflictPolicy       ConflictPolicy
	Metrics              *PrometheusMetrics
	CostTracker          *CostTracker

	BudgetGuard      *budget.Guard
	LoopDetector     *loopdetect.Detector
	LoopDetectWindow int
	LoopMaxResets    int
	TaskLedger       *plan.TaskLedger
	Artifacts        *artifact.Store
	InstanceLock     *ledger.InstanceLock
}

// WithMaxSteps sets Options.MaxSteps, a bound on total tick count for a single
// Run. Default 0 (unlimited). The engine does not read this field; Run enforces
// no step cap.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error { cfg.opts.MaxSteps = n; return nil }
}

// WithMaxConcurrentSteps sets Options.MaxConcurrentSteps, a cap on how many steps
// (across fork paths) execute at once for a single instance. Default 8. The engine
// does not read this field; execFork starts every fork path at once.
func WithMaxConcurrentSteps(n int) Option {
	return func(cfg *engineConfig) error { cfg.opts.MaxConcurrentSteps = n; return nil }
}

// WithQueueDepth sets Options.QueueDepth, a frontier channel capacity. Default
// 1024. The engine does not read this field; Run does not dispatch through a Frontier.
func WithQueueDepth(n int) Option {
	return func(cfg *engineConfig) error { cfg.opts.QueueDepth = n; return nil }
}

// WithBackpressureTimeout sets Options.BackpressureTimeout, a bound on how long
// Enqueue blocks against a full frontier. Default 30s. The engine does not read
// this field.
func WithBackpressureTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error { cfg.opts.BackpressureTimeout = d; return nil }
}

// WithDefaultStepTimeout sets the timeout applied to steps that don't declare their
// own StepPolicy.Timeout. Default 30s.
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error { cfg.opts.DefaultStepTimeout = d; return nil }
}

// WithRunWallClockBudget bounds total execution time for one Run call. Default 10m;
// 0 disables the deadline (the budget guard's wall-time dimension, if configured,
// still applies independently).
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error { cfg.opts.RunWallClockBudget = d; return nil }
}

// WithReplayMode sets Options.ReplayMode. The engine does not read this field;
// Run neither records nor replays step I/O.
func WithReplayMode(enabled bool) Option {
	return func(cfg *engineConfig) error { cfg.opts.ReplayMode = enabled; return nil }
}

// WithStrictReplay sets Options.StrictReplay. The engine does not read this
// field.
func WithStrictReplay(enabled bool) Option {
	return func(cfg *engineConfig) error { cfg.opts.StrictReplay = enabled; return nil }
}

// ConflictPolicy names how concurrent fork-path state deltas touching the same
// field would be resolved at join time. WithConflictPolicy accepts only
// ConflictFail and rejects the other two. The engine does not read the stored
// policy: execFork does not merge fork-path state at join time.
type ConflictPolicy int

const (
	ConflictFail ConflictPolicy = iota
	LastWriterWins
	ConflictCRDT
)

func WithConflictPolicy(policy ConflictPolicy) Option {
	return func(cfg *engineConfig) error {
		if policy != ConflictFail {
			return &EngineError{Message: "only ConflictFail is currently supported", Code: "UNSUPPORTED_CONFLICT_POLICY"}
		}
		cfg.opts.ConflictPolicy = policy
		return nil
	}
}

// WithMetrics wires a Prometheus metrics sink into the engine.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error { cfg.opts.Metrics = m; return nil }
}

// WithCostTracker sets Options.CostTracker. The engine does not read this field,
// and the budget guard does not consult it.
func WithCostTracker(t *CostTracker) Option {
	return func(cfg *engineConfig) error { cfg.opts.CostTracker = t; return nil }
}

// WithBudgetGuard wires a multi-dimensional budget guard into the engine, per spec
// §4.6: execStepNode reserves a per-step allocation before dispatch and
// commits/refunds it afterward, serialized across fork-path goroutines by the
// Guard's own internal mutex.
func WithBudgetGuard(g *budget.Guard) Option {
	return func(cfg *engineConfig) error { cfg.opts.BudgetGuard = g; return nil }
}

// WithLoopDetector wires the windowed loop/runaway detector into execLoop, per spec
// §4.5. window sets how many recent progress-ledger entries Detect consults each
// iteration (falls back to 5 if <= 0); maxResets bounds how many times a detected
// loop may be tolerated before the engine escalates to ErrLoopDetection.
func WithLoopDetector(d *loopdetect.Detector, window, maxResets int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.LoopDetector = d
		cfg.opts.LoopDetectWindow = window
		cfg.opts.LoopMaxResets = maxResets
		return nil
	}
}

// WithTaskLedger wires a TaskLedger/ProgressLedger projection into the engine, per
// spec §3.3: Run persists a TaskPlanned event carrying the ledger's content hash,
// and execStepNode transitions matching task entries to TaskCompleted as their
// steps finish, feeding the ProgressLedger the loop detector scores.
func WithTaskLedger(l *plan.TaskLedger) Option {
	return func(cfg *engineConfig) error { cfg.opts.TaskLedger = l; return nil }
}

// WithArtifactStore wires the claim-check artifact store into the engine, per spec
// §4.3/§6.3: execStepNode validates that a step's result.ArtifactRefs resolve
// before the step is considered complete, and Run garbage-collects an aborted
// instance's artifacts on non-success completion.
func WithArtifactStore(s *artifact.Store) Option {
	return func(cfg *engineConfig) error { cfg.opts.Artifacts = s; return nil }
}

// WithInstanceLock wires a distributed advisory lock into Run, per spec §5's
// per-instance single-writer concurrency requirement extended across multiple
// engine processes sharing one Store[S] backend.
func WithInstanceLock(l *ledger.InstanceLock) Option {
	return func(cfg *engineConfig) error { cfg.opts.InstanceLock = l; return nil }
}
