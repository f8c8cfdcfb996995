package bandit

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyOrderedPriority(t *testing.T) {
	assert.Equal(t, CategoryCodeGeneration, Classify("please implement a function to parse CSV"))
	assert.Equal(t, CategoryDataAnalysis, Classify("analyze this dataset of statistics"))
	assert.Equal(t, CategoryWebSearch, Classify("search the website for pricing"))
	assert.Equal(t, CategoryFileOperation, Classify("copy this file to another directory"))
	assert.Equal(t, CategoryReasoning, Classify("plan a strategy for the launch"))
	assert.Equal(t, CategoryTextGeneration, Classify("write a summary of the meeting"))
	assert.Equal(t, CategoryGeneral, Classify("hello there"))
}

func TestClassifyEmptyIsGeneral(t *testing.T) {
	assert.Equal(t, CategoryGeneral, Classify(""))
	assert.Equal(t, CategoryGeneral, Classify("   "))
}

func TestClassifyCaseInsensitive(t *testing.T) {
	assert.Equal(t, CategoryCodeGeneration, Classify("IMPLEMENT THE FEATURE"))
}

func TestSelectExcludesCandidates(t *testing.T) {
	s := New(DefaultPrior(), rand.New(rand.NewSource(42)))
	sel := s.Select([]string{"agent-a", "agent-b"}, "implement a function", map[string]bool{"agent-a": true})
	assert.Equal(t, "agent-b", sel.AgentID)
}

func TestSelectReturnsACandidate(t *testing.T) {
	s := New(DefaultPrior(), rand.New(rand.NewSource(1)))
	sel := s.Select([]string{"agent-a", "agent-b", "agent-c"}, "write a draft", nil)
	assert.Contains(t, []string{"agent-a", "agent-b", "agent-c"}, sel.AgentID)
	assert.Equal(t, CategoryTextGeneration, sel.Category)
}

func TestRecordOutcomeBiasesFutureSelection(t *testing.T) {
	s := New(DefaultPrior(), rand.New(rand.NewSource(7)))

	for i := 0; i < 50; i++ {
		s.RecordOutcome("reliable-agent", CategoryGeneral, 1.0)
		s.RecordOutcome("unreliable-agent", CategoryGeneral, 0.0)
	}

	wins := 0
	for i := 0; i < 100; i++ {
		sel := s.Select([]string{"reliable-agent", "unreliable-agent"}, "", nil)
		if sel.AgentID == "reliable-agent" {
			wins++
		}
	}
	assert.Greater(t, wins, 80, "an agent with a strong success history should be selected far more often")
}

func TestRecordOutcomeConcurrentSafety(t *testing.T) {
	s := New(DefaultPrior(), rand.New(rand.NewSource(3)))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordOutcome("agent-x", CategoryGeneral, 1.0)
		}()
	}
	wg.Wait()

	b := s.beliefFor("agent-x", CategoryGeneral)
	obs := b.obs.Load()
	assert.Equal(t, int64(100), obs, "every concurrent outcome must be recorded exactly once")
}

func TestConfidenceCapsAtOne(t *testing.T) {
	s := New(DefaultPrior(), rand.New(rand.NewSource(5)))
	for i := 0; i < 30; i++ {
		s.RecordOutcome("agent-a", CategoryGeneral, 1.0)
	}
	sel := s.Select([]string{"agent-a"}, "", nil)
	assert.Equal(t, 1.0, sel.Confidence)
}

func TestSampleGammaProducesPositiveValues(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 1000; i++ {
		g := sampleGamma(rng, 2.5)
		require.GreaterOrEqual(t, g, 0.0)
	}
}

func TestSampleGammaBoostForShapeLessThanOne(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	g := sampleGamma(rng, 0.5)
	assert.GreaterOrEqual(t, g, 0.0)
}

func TestSampleBetaWithinUnitInterval(t *testing.T) {
	s := New(DefaultPrior(), rand.New(rand.NewSource(13)))
	for i := 0; i < 500; i++ {
		v := s.sampleBeta(3, 7)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
