package sampling

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliasTableDistribution(t *testing.T) {
	at := NewAliasTable([]float64{1, 0, 3}, 1)
	require.Equal(t, 3, at.Len())

	rng := rand.New(rand.NewSource(7))
	counts := make([]int, 3)
	const draws = 40000
	for i := 0; i < draws; i++ {
		counts[at.Sample(rng)]++
	}

	assert.Zero(t, counts[1])
	assert.InDelta(t, 0.25, float64(counts[0])/draws, 0.02)
	assert.InDelta(t, 0.75, float64(counts[2])/draws, 0.02)
}

func TestAliasTableUniformFallbacks(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	zero := NewAliasTable([]float64{0, 0}, 1)
	seen := map[int64]bool{}
	for i := 0; i < 100; i++ {
		seen[zero.Sample(rng)] = true
	}
	assert.Len(t, seen, 2)

	assert.EqualValues(t, -1, NewAliasTable(nil, 1).Sample(rng))
}
