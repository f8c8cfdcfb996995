package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGuardAppliesScarcityMultiplier(t *testing.T) {
	cfg := Config{Base: Allocation{Steps: 100, Tokens: 1000}}
	g, err := NewGuard(cfg, ScarcityNormal)
	require.NoError(t, err)
	rem := g.Remaining()
	assert.Equal(t, int64(150), rem.Steps)
	assert.Equal(t, int64(1500), rem.Tokens)
}

func TestNewGuardAppliesRetryMargin(t *testing.T) {
	cfg := Config{Base: Allocation{Steps: 100}, RetryMargin: 0.2}
	g, err := NewGuard(cfg, ScarcityAbundant)
	require.NoError(t, err)
	assert.Equal(t, int64(80), g.Remaining().Steps)
}

func TestNewGuardRejectsInvalidRetryMargin(t *testing.T) {
	_, err := NewGuard(Config{RetryMargin: 0.9}, ScarcityAbundant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestNewGuardRejectsNonIncreasingMultipliers(t *testing.T) {
	cfg := Config{Multipliers: Multipliers{
		ScarcityAbundant: 2.0,
		ScarcityNormal:   1.5,
	}}
	_, err := NewGuard(cfg, ScarcityAbundant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestReserveSucceedsWithinBudget(t *testing.T) {
	g, err := NewGuard(Config{Base: Allocation{Steps: 10, Tokens: 100}}, ScarcityAbundant)
	require.NoError(t, err)

	res, err := g.Reserve(Allocation{Steps: 3, Tokens: 30})
	require.NoError(t, err)

	rem := g.Remaining()
	assert.Equal(t, int64(7), rem.Steps)
	assert.Equal(t, int64(70), rem.Tokens)
	assert.Equal(t, Allocation{Steps: 3, Tokens: 30}, res.requested)
}

func TestReserveFailsAtomicallyAcrossDimensions(t *testing.T) {
	g, err := NewGuard(Config{Base: Allocation{Steps: 10, Tokens: 5}}, ScarcityAbundant)
	require.NoError(t, err)

	before := g.Remaining()

	_, err = g.Reserve(Allocation{Steps: 3, Tokens: 100})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))

	after := g.Remaining()
	assert.Equal(t, before, after, "a failed reserve must leave every dimension unchanged")
}

func TestCommitRefundsUnusedPortion(t *testing.T) {
	g, err := NewGuard(Config{Base: Allocation{Steps: 10, Tokens: 100}}, ScarcityAbundant)
	require.NoError(t, err)

	res, err := g.Reserve(Allocation{Steps: 5, Tokens: 50})
	require.NoError(t, err)

	g.Commit(res, Allocation{Steps: 2, Tokens: 10})

	rem := g.Remaining()
	assert.Equal(t, int64(8), rem.Steps, "unused 3 steps should be returned")
	assert.Equal(t, int64(90), rem.Tokens, "unused 40 tokens should be returned")
}

func TestCommitDeductsOverageBeyondReservation(t *testing.T) {
	g, err := NewGuard(Config{Base: Allocation{Steps: 10}}, ScarcityAbundant)
	require.NoError(t, err)

	res, err := g.Reserve(Allocation{Steps: 2})
	require.NoError(t, err)

	g.Commit(res, Allocation{Steps: 5})

	assert.Equal(t, int64(5), g.Remaining().Steps)
}

func TestRefundReturnsEntireReservation(t *testing.T) {
	g, err := NewGuard(Config{Base: Allocation{Steps: 10, Tokens: 100}}, ScarcityAbundant)
	require.NoError(t, err)

	res, err := g.Reserve(Allocation{Steps: 4, Tokens: 40})
	require.NoError(t, err)

	g.Refund(res)

	rem := g.Remaining()
	assert.Equal(t, int64(10), rem.Steps)
	assert.Equal(t, int64(100), rem.Tokens)
}

func TestElapsedWallTimeDeductsSeconds(t *testing.T) {
	g, err := NewGuard(Config{Base: Allocation{WallTimeSeconds: 60}}, ScarcityAbundant)
	require.NoError(t, err)

	g.ElapsedWallTime(10 * time.Second)

	assert.Equal(t, int64(50), g.Remaining().WallTimeSeconds)
}

func TestConcurrentReservesSerializeWithoutOvercommit(t *testing.T) {
	g, err := NewGuard(Config{Base: Allocation{Steps: 100}}, ScarcityAbundant)
	require.NoError(t, err)

	const workers = 20
	done := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := g.Reserve(Allocation{Steps: 10})
			done <- (err == nil)
		}()
	}

	successes := 0
	for i := 0; i < workers; i++ {
		if <-done {
			successes++
		}
	}

	assert.Equal(t, 10, successes, "exactly 10 reservations of 10 steps fit a 100-step budget")
	assert.Equal(t, int64(0), g.Remaining().Steps)
}
