package knowledge

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTripleSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "kg/train.txt", []byte("A r B 1.0\nB r C\n\nbad line\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "kg/test.txt", []byte("A r C\nA s D\n"), 0644))

	ts, err := LoadTripleSource(fs, "kg")
	require.NoError(t, err)

	assert.Equal(t, []Triple{{0, 0, 1}, {1, 0, 2}}, ts.Train)
	assert.Empty(t, ts.Valid)
	assert.Equal(t, []Triple{{0, 0, 2}, {0, 1, 3}}, ts.Test)
	assert.EqualValues(t, 4, ts.NumEntities())
	assert.EqualValues(t, 2, ts.NumRelations())
	assert.Equal(t, "D", ts.Entities.Name(3))
	assert.Equal(t, "", ts.Entities.Name(4))
}

func TestLoadTripleSourceEmptyTrain(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "kg/train.txt", []byte("\n"), 0644))

	_, err := LoadTripleSource(fs, "kg")
	require.Error(t, err)

	_, err = LoadTripleSource(fs, "missing")
	require.Error(t, err)
}

func TestTripleSlots(t *testing.T) {
	tr := Triple{Head: 1, Relation: 2, Tail: 3}
	for slot, want := range []int64{1, 2, 3} {
		assert.Equal(t, want, tr.Get(slot))
	}
	assert.Equal(t, Triple{9, 2, 3}, tr.With(0, 9))
	assert.Equal(t, Triple{1, 2, 9}, tr.With(2, 9))

	p, err := PredictionTypeForSlot(1)
	require.NoError(t, err)
	assert.Equal(t, PredictRelation, p)
	_, err = PredictionTypeForSlot(3)
	assert.Error(t, err)
}
