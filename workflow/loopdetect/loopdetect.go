// Package loopdetect implements the runaway-workflow loop detector: a windowed,
// weighted scoring function over recent progress-ledger entries, per spec §4.5.
//
// The deterministic-scoring style (pure functions over a fixed window, no hidden
// state beyond the injected similarity calculator) is grounded on the teacher's
// graph/policy.go backoff math, which computes a value from a small set of inputs
// with no side effects; this package applies the same discipline to a richer
// scoring function.
package loopdetect

import (
	"strings"

	"github.com/sagaflow/sagaflow/workflow/plan"
)

// Signal and Entry are aliases onto the ProgressLedger's own types (workflow/plan),
// not a parallel definition: the detector scores the same records the ledger
// appends, per spec §4.5 ("most recent W progress entries"). Aliasing rather than
// converting means a *plan.ProgressLedger's Recent(W) slice feeds Detect directly.
type Signal = plan.ProgressSignal
type Entry = plan.ProgressEntry

const (
	SignalSuccess    = plan.SignalSuccess
	SignalFailure    = plan.SignalFailure
	SignalHelpNeeded = plan.SignalHelpNeeded
	SignalBlocked    = plan.SignalBlocked
	SignalInProgress = plan.SignalInProgress
)

// LoopType names the category of runaway behavior detected.
type LoopType string

const (
	LoopExactRepetition   LoopType = "ExactRepetition"
	LoopSemanticRepetition LoopType = "SemanticRepetition"
	LoopOscillation       LoopType = "Oscillation"
	LoopNoProgress        LoopType = "NoProgress"
)

// Strategy is the recommended recovery action for a detected loop.
type Strategy string

const (
	StrategyInjectVariation Strategy = "InjectVariation"
	StrategyForceRotation   Strategy = "ForceRotation"
	StrategySynthesize      Strategy = "Synthesize"
	StrategyDecompose       Strategy = "Decompose"
	StrategyEscalate        Strategy = "Escalate"
)

var strategyByLoopType = map[LoopType]Strategy{
	LoopExactRepetition:    StrategyInjectVariation,
	LoopSemanticRepetition: StrategyForceRotation,
	LoopOscillation:        StrategySynthesize,
	LoopNoProgress:         StrategyDecompose,
}

// Result is the detector's output per spec §4.5.
type Result struct {
	Detected           bool
	LoopType           LoopType
	Confidence         float64
	RecommendedStrategy Strategy
	Diagnostic         string
}

// SemanticSimilarityCalculator computes a similarity score in [0,1] between two
// output strings. Production callers inject an embedding-backed implementation;
// it is only invoked when the cheap scores have not already saturated, since it is
// assumed to be the most expensive component.
type SemanticSimilarityCalculator interface {
	Similarity(a, b string) float64
}

// Weights configures the four scoring components. Defaults per spec §4.5 sum to
// 1.0: Repetition 0.4, Semantic 0.3, NoProgress 0.2, Frustration 0.1.
type Weights struct {
	Repetition  float64
	Semantic    float64
	NoProgress  float64
	Frustration float64
}

func DefaultWeights() Weights {
	return Weights{Repetition: 0.4, Semantic: 0.3, NoProgress: 0.2, Frustration: 0.1}
}

// Config parameterizes the detector. Zero-value fields fall back to spec defaults.
type Config struct {
	WindowSize          int
	Weights             Weights
	RecoveryThreshold   float64
	SimilarityThreshold float64
	Saturation          float64 // epsilon below 1.0 treated as saturated, for skipping the semantic component
	Similarity          SemanticSimilarityCalculator
}

func (c Config) withDefaults() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = 5
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.RecoveryThreshold == 0 {
		c.RecoveryThreshold = 0.7
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.85
	}
	if c.Saturation == 0 {
		c.Saturation = 0.01
	}
	return c
}

// Detector runs the scoring and decision rule of spec §4.5 over a sliding window
// of progress entries.
type Detector struct {
	cfg Config
}

func New(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// Detect applies the decision rule of spec §4.5 to the most recent window of
// entries (entries[len(entries)-W:]). Fewer than W entries is insufficient data.
func (d *Detector) Detect(entries []Entry) Result {
	cfg := d.cfg
	w := cfg.WindowSize

	if len(entries) < w {
		return Result{Detected: false, Diagnostic: "insufficient data: fewer than window-size progress entries"}
	}
	window := entries[len(entries)-w:]

	repetition := repetitionScore(window)
	noProgress := noProgressScore(window)
	frustration := frustrationScore(window)

	saturated := repetition >= 1.0-cfg.Saturation || noProgress >= 1.0-cfg.Saturation
	var semantic float64
	if !saturated && cfg.Similarity != nil {
		semantic = maxPairwiseSimilarity(window, cfg.Similarity)
	}

	weighted := cfg.Weights.Repetition*repetition +
		cfg.Weights.Semantic*semantic +
		cfg.Weights.NoProgress*noProgress +
		cfg.Weights.Frustration*frustration

	// Step 2: exact repetition.
	if repetition == 1.0 {
		return Result{
			Detected: true, LoopType: LoopExactRepetition,
			Confidence: maxFloat(weighted, cfg.RecoveryThreshold),
			RecommendedStrategy: StrategyInjectVariation,
			Diagnostic: "all entries in window share the same action",
		}
	}

	// Step 3: total no-progress.
	if noProgress == 1.0 {
		return Result{
			Detected: true, LoopType: LoopNoProgress,
			Confidence: maxFloat(weighted, cfg.RecoveryThreshold),
			RecommendedStrategy: StrategyDecompose,
			Diagnostic: "no entry in window reported progress",
		}
	}

	// Step 4: oscillation.
	oscillation := oscillationScore(window)
	if oscillation >= 0.8 {
		return Result{
			Detected: true, LoopType: LoopOscillation,
			Confidence: maxFloat(weighted, oscillation),
			RecommendedStrategy: StrategySynthesize,
			Diagnostic: "actions cycle with a short period",
		}
	}

	// Step 5: semantic repetition.
	if semantic >= cfg.SimilarityThreshold {
		return Result{
			Detected: true, LoopType: LoopSemanticRepetition,
			Confidence: maxFloat(weighted, semantic),
			RecommendedStrategy: StrategyForceRotation,
			Diagnostic: "recent outputs are near-duplicate in embedding space",
		}
	}

	// Step 6: weighted confidence crosses the recovery threshold.
	if weighted >= cfg.RecoveryThreshold {
		loopType, strategy := argmaxComponent(repetition, noProgress, semantic)
		return Result{
			Detected: true, LoopType: loopType,
			Confidence: weighted, RecommendedStrategy: strategy,
			Diagnostic: "weighted confidence crossed recovery threshold",
		}
	}

	// Step 7: no loop.
	return Result{
		Detected: false, Confidence: weighted,
		Diagnostic: "weighted confidence below recovery threshold",
	}
}

func argmaxComponent(repetition, noProgress, semantic float64) (LoopType, Strategy) {
	loopType := LoopExactRepetition
	best := repetition
	if noProgress > best {
		best = noProgress
		loopType = LoopNoProgress
	}
	if semantic > best {
		loopType = LoopSemanticRepetition
	}
	return loopType, strategyByLoopType[loopType]
}

func repetitionScore(window []Entry) float64 {
	counts := make(map[string]int, len(window))
	for _, e := range window {
		counts[e.Action]++
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	return float64(max) / float64(len(window))
}

func noProgressScore(window []Entry) float64 {
	n := 0
	for _, e := range window {
		if !e.ProgressMade {
			n++
		}
	}
	return float64(n) / float64(len(window))
}

func frustrationScore(window []Entry) float64 {
	n := 0
	for _, e := range window {
		if e.Signal == SignalHelpNeeded || e.Signal == SignalFailure {
			n++
		}
	}
	return float64(n) / float64(len(window))
}

func maxPairwiseSimilarity(window []Entry, calc SemanticSimilarityCalculator) float64 {
	max := 0.0
	for i := 0; i < len(window); i++ {
		for j := i + 1; j < len(window); j++ {
			s := calc.Similarity(window[i].Output, window[j].Output)
			if s > max {
				max = s
			}
		}
	}
	return max
}

// oscillationScore scans every candidate period p in [2, W/2], scoring the
// fraction of positions i >= p where action[i] == action[i mod p], and returns the
// maximum over all periods, per spec §4.5.
func oscillationScore(window []Entry) float64 {
	w := len(window)
	maxPeriod := w / 2
	if maxPeriod < 2 {
		return 0
	}

	best := 0.0
	for p := 2; p <= maxPeriod; p++ {
		matches, total := 0, 0
		for i := p; i < w; i++ {
			total++
			if window[i].Action == window[i%p].Action {
				matches++
			}
		}
		if total == 0 {
			continue
		}
		score := float64(matches) / float64(total)
		if score > best {
			best = score
		}
	}
	return best
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// NormalizeDescription is a small helper for callers classifying free-text signals;
// kept here since the detector package already owns string-normalization logic for
// action comparisons.
func NormalizeDescription(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
