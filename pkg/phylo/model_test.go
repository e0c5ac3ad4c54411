package phylo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestT92Frequencies(t *testing.T) {
	m := T92{}
	freqs, err := m.Frequencies([]float64{2.0, 0.4})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, freqs[0], 1e-12) // A = (1-theta)/2
	assert.InDelta(t, 0.2, freqs[1], 1e-12) // C = theta/2
	assert.InDelta(t, 0.2, freqs[2], 1e-12)
	assert.InDelta(t, 0.3, freqs[3], 1e-12)

	var sum float64
	for _, f := range freqs {
		sum += f
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestT92Generator(t *testing.T) {
	m := T92{}
	params := []float64{3.0, 0.4}
	q, err := m.Generator(params)
	require.NoError(t, err)
	freqs, err := m.Frequencies(params)
	require.NoError(t, err)

	// Rows sum to zero.
	for i := 0; i < 4; i++ {
		var row float64
		for j := 0; j < 4; j++ {
			row += q.At(i, j)
		}
		assert.InDelta(t, 0, row, 1e-12, "row %d", i)
	}

	// Normalized to one expected substitution per unit time.
	var rate float64
	for i := 0; i < 4; i++ {
		rate -= freqs[i] * q.At(i, i)
	}
	assert.InDelta(t, 1.0, rate, 1e-12)

	// Time-reversible: pi_i q_ij == pi_j q_ji.
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.InDelta(t, freqs[i]*q.At(i, j), freqs[j]*q.At(j, i), 1e-12, "pair %d,%d", i, j)
		}
	}

	// Transitions outweigh transversions by kappa.
	assert.InDelta(t, 3.0, q.At(0, 2)/q.At(0, 1)*freqs[1]/freqs[2], 1e-12)
}

func TestT92ParameterValidation(t *testing.T) {
	m := T92{}
	cases := []struct {
		name   string
		params []float64
	}{
		{"wrong_count", []float64{1.0}},
		{"zero_kappa", []float64{0, 0.5}},
		{"theta_too_low", []float64{2.0, 0}},
		{"theta_too_high", []float64{2.0, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Frequencies(tc.params)
			assert.Error(t, err)
			_, err = m.Generator(tc.params)
			assert.Error(t, err)
		})
	}
}

func TestIsTransition(t *testing.T) {
	// A=0 C=1 G=2 T=3: A<->G and C<->T only.
	assert.True(t, isTransition(0, 2))
	assert.True(t, isTransition(2, 0))
	assert.True(t, isTransition(1, 3))
	assert.True(t, isTransition(3, 1))
	for i := 0; i < 4; i++ {
		assert.False(t, isTransition(i, i))
	}
	assert.False(t, isTransition(0, 1))
	assert.False(t, isTransition(0, 3))
	assert.False(t, isTransition(2, 3))
	assert.False(t, isTransition(1, 2))
}
