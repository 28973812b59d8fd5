package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAverageScalingInvariance(t *testing.T) {
	base := Code{1120, 560, 560, 1680, 560, 2240, 560}
	for _, k := range []float64{0.5, 1, 1.5, 3} {
		scaled := make(Code, len(base))
		for i, d := range base {
			scaled[i] = d * k
		}
		got, err := Average([]Code{scaled}, AverageOptions{})
		require.NoError(t, err, "k=%v", k)
		require.Len(t, got, len(base))
		for i := range base {
			assert.InDelta(t, k, got[i]/base[i], DefaultTolerance, "k=%v position %d", k, i)
		}
	}
}

func TestAverageJitteredSamples(t *testing.T) {
	a := Code{560, 560, 1690, 560}
	b := Code{570, 550, 1680, 565}
	c := Code{555, 565, 1700, 560}

	got, err := Average([]Code{a, b, c}, AverageOptions{})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{562, 562, 1686, 562}, []float64(got), 1e-9)
}

func TestAverageIsOrderIndependent(t *testing.T) {
	a := Code{560, 560, 1690, 560}
	b := Code{570, 550, 1680, 565}
	c := Code{555, 565, 1700, 560}

	want, err := Average([]Code{a, b, c}, AverageOptions{})
	require.NoError(t, err)
	for _, order := range [][]Code{{a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a}} {
		got, err := Average(order, AverageOptions{})
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64(want), []float64(got), 1e-9)
	}
}

func TestAverageInconsistentSamples(t *testing.T) {
	_, err := Average([]Code{{500, 500, 500}, {1000, 500, 1000}}, AverageOptions{})
	assert.ErrorIs(t, err, ErrInconsistentSamples)

	_, err = Average([]Code{{500, 500, 500}, {500, 500, 500, 500, 500}}, AverageOptions{})
	assert.ErrorIs(t, err, ErrInconsistentSamples)
}

func TestAverageToleranceExceeded(t *testing.T) {
	_, err := Average([]Code{{500, 733, 1900}}, AverageOptions{Tolerance: 0.15})
	assert.ErrorIs(t, err, ErrToleranceExceeded)

	_, err = Average([]Code{{500, 0, 500}}, AverageOptions{})
	assert.ErrorIs(t, err, ErrToleranceExceeded)
}

func TestAverageUnitsMustAgree(t *testing.T) {
	_, err := Average([]Code{{500, 500, 500}, {700, 700, 700}}, AverageOptions{})
	assert.ErrorIs(t, err, ErrToleranceExceeded)

	got, err := Average([]Code{{500, 500, 500}, {540, 540, 540}}, AverageOptions{})
	require.NoError(t, err)
	assert.Equal(t, Code{520, 520, 520}, got)
}

func TestAverageWiderToleranceAccepts(t *testing.T) {
	_, err := Average([]Code{{500, 733, 1900}}, AverageOptions{Tolerance: 0.45})
	assert.NoError(t, err)
}

func TestAverageNoSamples(t *testing.T) {
	_, err := Average(nil, AverageOptions{})
	assert.ErrorIs(t, err, ErrNoSamples)
	assert.True(t, IsConfigError(err))

	_, err = Average([]Code{{}}, AverageOptions{})
	assert.ErrorIs(t, err, ErrNoSamples)
}
