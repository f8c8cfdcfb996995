// Package budget implements the multi-dimensional resource budget guard: atomic
// reservation/commit/refund across a workflow instance's step, token, execution,
// tool-call, and wall-time allocations, per spec §3.5 and §4.6.
//
// The atomic-counter discipline is grounded on the teacher's
// graph/scheduler.go Frontier, which tracks multiple related counters
// (totalEnqueued, totalDequeued, backpressureEvents, peakQueueDepth) behind a single
// mutex so a snapshot is always internally consistent; Guard applies the same
// discipline to the five budget dimensions so a reservation either succeeds across
// all of them or none are touched.
package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrExhausted is returned when a Reserve would drive any dimension negative. No
// partial consumption occurs.
var ErrExhausted = errors.New("budget exhausted")

// ErrInvalidConfig is returned by NewGuard when the configuration violates spec
// §4.6's validation rules.
var ErrInvalidConfig = errors.New("invalid budget configuration")

// Dimension names one of the five budget axes of spec §3.5.
type Dimension string

const (
	DimensionSteps     Dimension = "steps"
	DimensionTokens    Dimension = "tokens"
	DimensionExecutions Dimension = "executions"
	DimensionToolCalls Dimension = "tool_calls"
	DimensionWallTime  Dimension = "wall_time_seconds"
)

var allDimensions = []Dimension{DimensionSteps, DimensionTokens, DimensionExecutions, DimensionToolCalls, DimensionWallTime}

// Allocation carries the five budget dimensions of spec §3.5.
type Allocation struct {
	Steps           int64
	Tokens          int64
	Executions      int64
	ToolCalls       int64
	WallTimeSeconds int64
}

func (a Allocation) get(d Dimension) int64 {
	switch d {
	case DimensionSteps:
		return a.Steps
	case DimensionTokens:
		return a.Tokens
	case DimensionExecutions:
		return a.Executions
	case DimensionToolCalls:
		return a.ToolCalls
	case DimensionWallTime:
		return a.WallTimeSeconds
	default:
		return 0
	}
}

func (a *Allocation) sub(d Dimension, n int64) {
	switch d {
	case DimensionSteps:
		a.Steps -= n
	case DimensionTokens:
		a.Tokens -= n
	case DimensionExecutions:
		a.Executions -= n
	case DimensionToolCalls:
		a.ToolCalls -= n
	case DimensionWallTime:
		a.WallTimeSeconds -= n
	}
}

func (a *Allocation) add(d Dimension, n int64) {
	a.sub(d, -n)
}

// ScarcityLevel scales a base Allocation by a configured multiplier, per spec §3.5.
type ScarcityLevel string

const (
	ScarcityAbundant ScarcityLevel = "abundant"
	ScarcityNormal   ScarcityLevel = "normal"
	ScarcityScarce   ScarcityLevel = "scarce"
	ScarcityCritical ScarcityLevel = "critical"
)

// Multipliers is the per-level scaling table. Defaults below match spec §3.5's
// prescribed strictly-increasing sequence 1.0/1.5/3.0/10.0.
type Multipliers map[ScarcityLevel]float64

func DefaultMultipliers() Multipliers {
	return Multipliers{
		ScarcityAbundant: 1.0,
		ScarcityNormal:   1.5,
		ScarcityScarce:   3.0,
		ScarcityCritical: 10.0,
	}
}

// Config configures a Guard. RetryMargin reserves a fraction of each dimension as
// headroom for retries, per spec §4.6 ("retry-margin ∈ [0, 0.5]").
type Config struct {
	Base        Allocation
	Multipliers Multipliers
	RetryMargin float64
}

func (c Config) validate() error {
	if c.RetryMargin < 0 || c.RetryMargin > 0.5 {
		return fmt.Errorf("%w: retry margin %v must be in [0, 0.5]", ErrInvalidConfig, c.RetryMargin)
	}
	if len(c.Multipliers) > 0 {
		order := []ScarcityLevel{ScarcityAbundant, ScarcityNormal, ScarcityScarce, ScarcityCritical}
		prev := -1.0
		for _, lvl := range order {
			m, ok := c.Multipliers[lvl]
			if !ok {
				continue
			}
			if m < 0 {
				return fmt.Errorf("%w: multiplier for %s must be >= 0", ErrInvalidConfig, lvl)
			}
			if m <= prev {
				return fmt.Errorf("%w: scarcity multipliers must be strictly increasing", ErrInvalidConfig)
			}
			prev = m
		}
	}
	return nil
}

// Guard is the single-object-per-instance budget tracker of spec §4.6. All
// mutating operations acquire the same mutex, so concurrent reservations from
// parallel fork paths serialize rather than racing (spec §4.6: "concurrent step
// dispatches within a fork must serialize reservation to avoid over-commit").
type Guard struct {
	mu        sync.Mutex
	remaining Allocation
	cfg       Config
}

// NewGuard computes the effective allocation for level (Base scaled by the
// corresponding multiplier, reduced by RetryMargin headroom) and returns a Guard
// tracking it.
func NewGuard(cfg Config, level ScarcityLevel) (*Guard, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	mult := cfg.Multipliers
	if mult == nil {
		mult = DefaultMultipliers()
	}
	scale := mult[level]
	if scale == 0 {
		scale = 1.0
	}

	headroom := 1.0 - cfg.RetryMargin
	eff := Allocation{
		Steps:           int64(float64(cfg.Base.Steps) * scale * headroom),
		Tokens:          int64(float64(cfg.Base.Tokens) * scale * headroom),
		Executions:      int64(float64(cfg.Base.Executions) * scale * headroom),
		ToolCalls:       int64(float64(cfg.Base.ToolCalls) * scale * headroom),
		WallTimeSeconds: int64(float64(cfg.Base.WallTimeSeconds) * scale * headroom),
	}
	return &Guard{remaining: eff, cfg: cfg}, nil
}

// Result is returned by Reserve: a token identifying the reservation, used later to
// Commit (consume the actual amount) or Refund (release unused amount back).
type Result struct {
	id        uint64
	requested Allocation
}

var reservationSeq uint64

// Reserve atomically checks that every dimension of estimate fits within the
// remaining allocation; if any would go negative, nothing is consumed and
// ErrExhausted is returned naming the first exhausted dimension found (spec §4.6,
// §8 invariant 5: "a failed reserve leaves all dimensions unchanged").
func (g *Guard) Reserve(estimate Allocation) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, d := range allDimensions {
		if g.remaining.get(d)-estimate.get(d) < 0 {
			return Result{}, fmt.Errorf("%w: dimension %s", ErrExhausted, d)
		}
	}

	reservationSeq++
	for _, d := range allDimensions {
		g.remaining.sub(d, estimate.get(d))
	}
	return Result{id: reservationSeq, requested: estimate}, nil
}

// Commit finalizes a reservation at its actual consumption. If actual is less than
// what was reserved, the difference is refunded automatically; if actual exceeds
// the reservation, the excess is deducted from remaining without a further check
// (the caller already committed to running the step; budget enforcement happens at
// Reserve time, not after the fact).
func (g *Guard) Commit(res Result, actual Allocation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range allDimensions {
		diff := res.requested.get(d) - actual.get(d)
		g.remaining.add(d, diff)
	}
}

// Refund releases an entire reservation back to remaining, for a step that never
// ran (e.g. the engine aborted before dispatch).
func (g *Guard) Refund(res Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range allDimensions {
		g.remaining.add(d, res.requested.get(d))
	}
}

// Remaining returns a snapshot of the current allocation.
func (g *Guard) Remaining() Allocation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}

// ElapsedWallTime deducts d from the wall-time dimension directly, bypassing
// Reserve/Commit since wall-clock consumption isn't pre-estimated per step the way
// token/tool-call counts are.
func (g *Guard) ElapsedWallTime(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remaining.WallTimeSeconds -= int64(d.Seconds())
}
