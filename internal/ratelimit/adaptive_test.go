package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdaptive(limit, burst int, span time.Duration) (*AdaptiveLimiter, *fakeClock) {
	a := NewAdaptiveLimiter(Tuning{})
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	a.limiter.now = clock.Now
	a.Register("src", limit, burst, span)
	return a, clock
}

func TestAdaptive_FactorNeverBelowFloor(t *testing.T) {
	a, _ := newTestAdaptive(1, 1, time.Hour)

	require.True(t, a.Admit("src"))
	for i := 0; i < 200; i++ {
		assert.False(t, a.Admit("src"))
	}
	assert.GreaterOrEqual(t, a.Factor("src"), DefaultFactorFloor)
	assert.InDelta(t, DefaultFactorFloor, a.Factor("src"), 0.001,
		"repeated denials drive the factor to the floor, not past it")
}

func TestAdaptive_FactorNeverAboveCeil(t *testing.T) {
	a, _ := newTestAdaptive(1000, 1, time.Hour)

	for i := 0; i < 500; i++ {
		require.True(t, a.Admit("src"))
	}
	assert.LessOrEqual(t, a.Factor("src"), DefaultFactorCeil)
}

func TestAdaptive_FactorRecovers(t *testing.T) {
	a, clock := newTestAdaptive(2, 1, time.Minute)

	require.True(t, a.Admit("src"))
	require.True(t, a.Admit("src"))
	require.False(t, a.Admit("src"))
	dipped := a.Factor("src")
	assert.Less(t, dipped, DefaultFactorCeil)

	clock.Advance(time.Minute + time.Millisecond)
	require.True(t, a.Admit("src"))
	assert.Greater(t, a.Factor("src"), dipped)
}

func TestAdaptive_ScaledLimitShrinksAdmissions(t *testing.T) {
	a, _ := newTestAdaptive(10, 1, time.Hour)

	// Force the factor to the floor with a long denial run.
	for i := 0; i < 10; i++ {
		a.Admit("src")
	}
	for i := 0; i < 100; i++ {
		a.Admit("src")
	}
	require.InDelta(t, DefaultFactorFloor, a.Factor("src"), 0.001)

	// At factor 0.5 the effective limit is 5: with 10 logged admissions
	// nothing more gets through even after a reset of state below 10.
	assert.Equal(t, 10, a.Used("src"))
	assert.False(t, a.Admit("src"))
}

func TestAdaptive_RegisterResetsFactor(t *testing.T) {
	a, _ := newTestAdaptive(1, 1, time.Hour)
	a.Admit("src")
	a.Admit("src") // denial, factor dips
	require.Less(t, a.Factor("src"), DefaultFactorCeil)

	a.Register("src", 1, 1, time.Hour)
	assert.Equal(t, DefaultFactorCeil, a.Factor("src"))
}

func TestAdaptive_UnknownSource(t *testing.T) {
	a := NewAdaptiveLimiter(Tuning{})
	assert.False(t, a.Admit("ghost"))
	assert.Equal(t, 0.0, a.Factor("ghost"))

	err := a.WaitForQuota(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestAdaptive_WaitForQuota_Immediate(t *testing.T) {
	a, _ := newTestAdaptive(5, 5, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, a.WaitForQuota(ctx, "src"))
	assert.Equal(t, 1, a.Used("src"))
}

func TestAdaptive_WaitForQuota_ContextCancelled(t *testing.T) {
	a, _ := newTestAdaptive(1, 1, time.Hour)
	require.True(t, a.Admit("src"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := a.WaitForQuota(ctx, "src")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdaptive_WaitForQuota_UnblocksOnWindowSlide(t *testing.T) {
	a := NewAdaptiveLimiter(Tuning{})
	a.Register("src", 1, 1, 100*time.Millisecond)
	require.True(t, a.Admit("src"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := a.WaitForQuota(ctx, "src")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond,
		"the wait must sleep out the window, not spin through it")
}

func TestTuning_Defaults(t *testing.T) {
	tn := Tuning{}.withDefaults()
	assert.Equal(t, DefaultFactorFloor, tn.FactorFloor)
	assert.Equal(t, DefaultFactorCeil, tn.FactorCeil)
	assert.Equal(t, DefaultBackoffStep, tn.BackoffStep)
	assert.Equal(t, DefaultRecoverStep, tn.RecoverStep)

	custom := Tuning{FactorFloor: 0.25}.withDefaults()
	assert.Equal(t, 0.25, custom.FactorFloor)
	assert.Equal(t, DefaultFactorCeil, custom.FactorCeil)
}
