package progress_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opereon/opereon-sub000/internal/progress"
)

func TestApplyMonotoneCounter(t *testing.T) {
	p := progress.New(0, 10, progress.Scalar)
	require.EqualValues(t, 0, p.Counter())

	p.Apply(progress.Update{Value: 3})
	c1 := p.Counter()
	assert.EqualValues(t, 3, p.Value())
	assert.Greater(t, c1, uint64(0))

	p.Apply(progress.Update{Value: 5})
	assert.Greater(t, p.Counter(), c1)
	assert.EqualValues(t, 5, p.Value())
}

func TestApplyClampsToMax(t *testing.T) {
	p := progress.New(0, 10, progress.Scalar)
	p.Apply(progress.Update{Value: 999})
	assert.EqualValues(t, 10, p.Value())
	assert.True(t, p.IsDone())
}

func TestApplyTerminalSentinel(t *testing.T) {
	p := progress.New(0, 10, progress.Scalar)
	p.Apply(progress.Update{Value: math.Inf(1)})
	assert.True(t, p.IsDone())
	assert.EqualValues(t, 10, p.Value())
}

func TestApplyIdempotentOnceDone(t *testing.T) {
	p := progress.New(0, 10, progress.Scalar)
	p.Finish()
	c := p.Counter()
	p.Apply(progress.Update{Value: 1})
	assert.Equal(t, c, p.Counter(), "updates after done must be no-ops")
	assert.True(t, p.IsDone())
}

func TestPartsPreserveInsertionOrder(t *testing.T) {
	p := progress.New(0, 1, progress.Scalar)
	p.Part("b")
	p.Part("a")
	p.Part("b") // repeat access must not reorder or duplicate

	parts := p.Parts()
	require.Len(t, parts, 2)
	assert.Equal(t, "b", parts[0].Label)
	assert.Equal(t, "a", parts[1].Label)
}

func TestSpeedUnsetByDefault(t *testing.T) {
	p := progress.New(0, 1, progress.Scalar)
	_, ok := p.Speed()
	assert.False(t, ok)

	speed := 42.0
	p.Apply(progress.Update{Value: 0, Speed: &speed})
	got, ok := p.Speed()
	require.True(t, ok)
	assert.Equal(t, 42.0, got)
}
