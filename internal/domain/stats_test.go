package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil, DefaultBarrier)
	assert.True(t, s.Empty())
	assert.Equal(t, 0.0, s.OverFraction)
	assert.Equal(t, 0.0, s.EvenFraction)
	assert.Len(t, s.Missing, 10)
}

func TestComputeStats_Frequencies(t *testing.T) {
	s := ComputeStats([]Digit{1, 2, 2, 3, 4}, DefaultBarrier)

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Counts[2])
	assert.InDelta(t, 0.4, s.Frequencies[2], 1e-9)
	assert.Equal(t, Digit(2), s.MostFrequent)
	assert.Equal(t, Digit(0), s.LeastFrequent) // zero-count digits count
	assert.Equal(t, []Digit{0, 5, 6, 7, 8, 9}, s.Missing)
	assert.Equal(t, 0, s.SinceLast[4])
	assert.Equal(t, 4, s.SinceLast[1])
	assert.Equal(t, 5, s.SinceLast[9])
}

func TestComputeStats_TiesResolveLow(t *testing.T) {
	s := ComputeStats([]Digit{7, 3, 7, 3}, DefaultBarrier)
	assert.Equal(t, Digit(3), s.MostFrequent)
}

func TestComputeStats_BarrierIsStrict(t *testing.T) {
	s := ComputeStats([]Digit{5, 5, 6, 4}, 5)
	assert.InDelta(t, 0.25, s.OverFraction, 1e-9)
	assert.InDelta(t, 0.25, s.UnderFraction, 1e-9)
}

func TestComputeStats_Parity(t *testing.T) {
	s := ComputeStats([]Digit{0, 2, 4, 1}, DefaultBarrier)
	assert.InDelta(t, 0.75, s.EvenFraction, 1e-9)
	assert.InDelta(t, 0.25, s.OddFraction, 1e-9)
}

func TestComputeStats_Streaks(t *testing.T) {
	s := ComputeStats([]Digit{1, 8, 8, 8, 2, 2, 6, 6, 6, 6}, DefaultBarrier)
	assert.Equal(t, []Streak{
		{Digit: 8, Length: 3, Start: 1},
		{Digit: 6, Length: 4, Start: 6},
	}, s.Streaks)
}

func TestComputeStats_SkipsOutOfRangeValues(t *testing.T) {
	var s DigitStats
	require.NotPanics(t, func() { s = ComputeStats([]Digit{3, 12, 3, -1, 8}, DefaultBarrier) })

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Invalid)
	assert.Equal(t, 2, s.Counts[3])
	assert.Equal(t, 1, s.Counts[8])
	assert.Equal(t, Digit(3), s.MostFrequent)
	assert.Equal(t, 0, s.SinceLast[8])
	assert.Equal(t, 1, s.SinceLast[3])
}
