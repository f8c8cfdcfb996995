package loopdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSimilarity struct {
	value float64
}

func (s stubSimilarity) Similarity(a, b string) float64 { return s.value }

func windowOf(actions []string, progress []bool) []Entry {
	entries := make([]Entry, len(actions))
	for i, a := range actions {
		p := true
		if progress != nil {
			p = progress[i]
		}
		entries[i] = Entry{Action: a, Output: a, ProgressMade: p, Signal: SignalSuccess}
	}
	return entries
}

func TestDetectInsufficientData(t *testing.T) {
	d := New(Config{WindowSize: 5})
	res := d.Detect(windowOf([]string{"a", "a"}, nil))
	assert.False(t, res.Detected)
	assert.Contains(t, res.Diagnostic, "insufficient data")
}

func TestDetectExactRepetition(t *testing.T) {
	d := New(Config{WindowSize: 5})
	entries := windowOf([]string{"search", "search", "search", "search", "search"}, nil)
	res := d.Detect(entries)

	require.True(t, res.Detected)
	assert.Equal(t, LoopExactRepetition, res.LoopType)
	assert.Equal(t, StrategyInjectVariation, res.RecommendedStrategy)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
}

func TestDetectNoProgress(t *testing.T) {
	d := New(Config{WindowSize: 5})
	entries := windowOf([]string{"a", "b", "c", "d", "e"}, []bool{false, false, false, false, false})
	res := d.Detect(entries)

	require.True(t, res.Detected)
	assert.Equal(t, LoopNoProgress, res.LoopType)
	assert.Equal(t, StrategyDecompose, res.RecommendedStrategy)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
}

func TestDetectOscillation(t *testing.T) {
	d := New(Config{WindowSize: 6})
	entries := windowOf([]string{"a", "b", "a", "b", "a", "b"}, nil)
	res := d.Detect(entries)

	require.True(t, res.Detected)
	assert.Equal(t, LoopOscillation, res.LoopType)
	assert.Equal(t, StrategySynthesize, res.RecommendedStrategy)
}

func TestDetectSemanticRepetition(t *testing.T) {
	d := New(Config{WindowSize: 5, Similarity: stubSimilarity{value: 0.95}})
	entries := windowOf([]string{"research", "investigate", "explore", "analyze", "study"}, nil)
	res := d.Detect(entries)

	require.True(t, res.Detected)
	assert.Equal(t, LoopSemanticRepetition, res.LoopType)
	assert.Equal(t, StrategyForceRotation, res.RecommendedStrategy)
}

func TestDetectNoLoopOnHealthyProgress(t *testing.T) {
	d := New(Config{WindowSize: 5, Similarity: stubSimilarity{value: 0.1}})
	entries := windowOf([]string{"plan", "implement", "test", "document", "review"}, nil)
	res := d.Detect(entries)

	assert.False(t, res.Detected)
}

func TestFrustrationScoreContributesToWeighted(t *testing.T) {
	d := New(Config{WindowSize: 5, Similarity: stubSimilarity{value: 0}})
	entries := []Entry{
		{Action: "a", Output: "x1", ProgressMade: false, Signal: SignalHelpNeeded},
		{Action: "b", Output: "x2", ProgressMade: false, Signal: SignalFailure},
		{Action: "c", Output: "x3", ProgressMade: true, Signal: SignalSuccess},
		{Action: "d", Output: "x4", ProgressMade: false, Signal: SignalHelpNeeded},
		{Action: "e", Output: "x5", ProgressMade: false, Signal: SignalFailure},
	}
	res := d.Detect(entries)
	// no-progress = 4/5 = 0.8, not 1.0, so falls through to weighted rule:
	// 0.4*0.2 (repetition) + 0.3*0 (semantic) + 0.2*0.8 (no-progress) +
	// 0.1*0.8 (frustration) = 0.32, below the 0.7 recovery threshold.
	require.False(t, res.Detected)
	assert.InDelta(t, 0.32, res.Confidence, 1e-9)
}

func TestOscillationScoreScansAllPeriods(t *testing.T) {
	window := windowOf([]string{"a", "b", "c", "a", "b", "c"}, nil)
	score := oscillationScore(window)
	assert.Equal(t, 1.0, score)
}

func TestRepetitionScoreComputesMaxActionFraction(t *testing.T) {
	window := windowOf([]string{"a", "a", "a", "b", "c"}, nil)
	assert.InDelta(t, 0.6, repetitionScore(window), 1e-9)
}
