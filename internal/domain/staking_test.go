package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMartingale_CeilingExample(t *testing.T) {
	m, err := NewMartingale(StakingConfig{BaseStake: 10, StartAfter: 1, MaxLevel: 3, Multiplier: Exponential(2)})
	require.NoError(t, err)

	var stakes []float64
	var reports int
	for i := 0; i < 4; i++ {
		stakes = append(stakes, m.NextStake())
		if m.RecordLoss() {
			reports++
		}
	}
	assert.Equal(t, []float64{10, 20, 40, 40}, stakes)
	assert.Equal(t, 1, reports)
	assert.Equal(t, 40.0, m.NextStake())
	assert.True(t, m.AtCeiling())

	m.RecordWin()
	assert.Equal(t, 10.0, m.NextStake())
	assert.Equal(t, StakingState{BaseStake: 10}, m.State())
}

func TestMartingale_NonDecreasingThenConstant(t *testing.T) {
	m, err := NewMartingale(StakingConfig{BaseStake: 1, StartAfter: 1, MaxLevel: 5})
	require.NoError(t, err)

	prev := 0.0
	for i := 0; i < 10; i++ {
		s := m.NextStake()
		assert.GreaterOrEqual(t, s, prev)
		prev = s
		m.RecordLoss()
	}
	assert.Equal(t, 16.0, prev)
}

func TestMartingale_StartAfter(t *testing.T) {
	m, err := NewMartingale(StakingConfig{BaseStake: 5, StartAfter: 3, MaxLevel: 4})
	require.NoError(t, err)

	m.RecordLoss()
	m.RecordLoss()
	assert.Equal(t, 5.0, m.NextStake())
	assert.Equal(t, 2, m.State().ConsecutiveLosses)

	m.RecordLoss()
	assert.Equal(t, 10.0, m.NextStake())
	assert.Equal(t, 1, m.State().Level)
}

func TestMartingale_MaxStakeCapReported(t *testing.T) {
	m, err := NewMartingale(StakingConfig{BaseStake: 10, StartAfter: 1, MaxLevel: 10, MaxStake: 50})
	require.NoError(t, err)

	var reported []bool
	for i := 0; i < 5; i++ {
		reported = append(reported, m.RecordLoss())
		assert.LessOrEqual(t, m.NextStake(), 50.0)
	}
	assert.Equal(t, []bool{false, false, true, false, false}, reported)
	assert.Equal(t, 40.0, m.NextStake())
}

func TestMartingale_ReportsAgainAfterWin(t *testing.T) {
	m, _ := NewMartingale(StakingConfig{BaseStake: 1, StartAfter: 1, MaxLevel: 1})
	assert.True(t, m.RecordLoss())
	assert.False(t, m.RecordLoss())
	m.RecordWin()
	assert.True(t, m.RecordLoss())
}

func TestMartingale_Progressions(t *testing.T) {
	fib := Fibonacci()
	assert.Equal(t, []float64{1, 2, 3, 5, 8}, []float64{fib(0), fib(1), fib(2), fib(3), fib(4)})

	lin := Linear(0.5)
	assert.Equal(t, 1.0, lin(0))
	assert.Equal(t, 2.0, lin(2))

	_, err := ParseProgression("fibonacci", 0)
	assert.NoError(t, err)
	_, err = ParseProgression("exponential", 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = ParseProgression("dalembert", 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewMartingale_Validation(t *testing.T) {
	_, err := NewMartingale(StakingConfig{BaseStake: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewMartingale(StakingConfig{BaseStake: 10, MaxStake: 5})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewMartingale(StakingConfig{BaseStake: 10, StartAfter: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMartingale_Reset(t *testing.T) {
	m, _ := NewMartingale(StakingConfig{BaseStake: 2, StartAfter: 1, MaxLevel: 3})
	m.RecordLoss()
	m.Reset()
	assert.Equal(t, 2.0, m.NextStake())
	assert.Equal(t, 0, m.State().ConsecutiveLosses)
}
