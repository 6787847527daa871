package data

import (
	"context"
	"testing"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource() *knowledge.TripleSource {
	ts := knowledge.NewTripleSource()
	for _, e := range []string{"A", "B", "C", "D", "E"} {
		ts.Entities.GetOrCreate(e)
	}
	ts.Add(&ts.Train, "A", "r", "B")
	ts.Add(&ts.Train, "B", "r", "C")
	ts.Add(&ts.Train, "C", "s", "D")
	ts.Add(&ts.Train, "D", "s", "E")
	ts.Add(&ts.Train, "E", "r", "A")
	ts.Add(&ts.Valid, "A", "s", "C")
	ts.Add(&ts.Test, "B", "s", "D")
	return ts
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.BatchSize = 2
	cfg.NegativeEntity = 2
	cfg.NegativeRelation = 1
	return cfg
}

func TestTrainingLoaderBatches(t *testing.T) {
	ts := testSource()
	l, err := CreateDataLoader(ts, testConfig(), false, Training)
	require.NoError(t, err)

	require.Equal(t, 3, l.Len())
	require.Equal(t, 3, l.NegativeRatio())

	batches := l.Batches(1)
	require.Len(t, batches, 3)

	seen := map[knowledge.Triple]bool{}
	for _, b := range batches {
		assert.Len(t, b.Negative, len(b.Positive)*3)
		assert.Nil(t, b.Labels)
		for i, pos := range b.Positive {
			seen[pos] = true
			for _, neg := range b.Negative[i*3 : (i+1)*3] {
				assert.NotEqual(t, pos, neg)
				// exactly one slot differs from the positive
				diff := 0
				for slot := 0; slot < 3; slot++ {
					if pos.Get(slot) != neg.Get(slot) {
						diff++
					}
				}
				assert.Equal(t, 1, diff)
			}
		}
	}
	assert.Len(t, seen, len(ts.Train))
}

func TestTrainingLoaderIsReproducible(t *testing.T) {
	ts := testSource()
	l, err := CreateDataLoader(ts, testConfig(), true, Training)
	require.NoError(t, err)

	assert.Equal(t, l.Batches(3), l.Batches(3))

	b := l.Batches(1)[0]
	require.Len(t, b.Labels, len(b.Positive)+len(b.Negative))
	pos, neg := ConvertBatch(b)
	for _, y := range pos.Labels {
		assert.Equal(t, 1.0, y)
	}
	for _, y := range neg.Labels {
		assert.Equal(t, -1.0, y)
	}
}

func TestEvaluationLoader(t *testing.T) {
	ts := testSource()
	l, err := CreateDataLoader(ts, testConfig(), false, Validation)
	require.NoError(t, err)

	batches := l.Batches(1)
	require.Len(t, batches, 1)
	assert.Equal(t, ts.Valid, batches[0].Positive)
	assert.Empty(t, batches[0].Negative)
	assert.Zero(t, l.NegativeRatio())
}

func TestCreateDataLoaderErrors(t *testing.T) {
	_, err := CreateDataLoader(knowledge.NewTripleSource(), testConfig(), false, Training)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.BatchSize = 0
	_, err = CreateDataLoader(testSource(), cfg, false, Testing)
	assert.Error(t, err)
}

func TestIteratorCloseEarly(t *testing.T) {
	l, err := CreateDataLoader(testSource(), testConfig(), false, Training)
	require.NoError(t, err)

	it := l.Iterate(context.Background(), 1)
	_, ok := it.Next()
	require.True(t, ok)
	it.Close()
}

func TestBernoulliHeadProbabilities(t *testing.T) {
	ts := knowledge.NewTripleSource()
	// one head with many tails: tph=3, hpt=1
	ts.Add(&ts.Train, "A", "r", "B")
	ts.Add(&ts.Train, "A", "r", "C")
	ts.Add(&ts.Train, "A", "r", "D")

	probs := bernoulliHeadProbabilities(ts.Train)
	assert.InDelta(t, 0.75, probs[0], 1e-12)
}

func TestExpandTriple(t *testing.T) {
	tr := knowledge.Triple{Head: 0, Relation: 0, Tail: 1}
	out := ExpandTriple(tr, knowledge.PredictTail, 3)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, []int64{0, 1, 2}, out.Tails)
	assert.Equal(t, []int64{0, 0, 0}, out.Heads)
	assert.Equal(t, knowledge.Triple{Head: 0, Relation: 0, Tail: 2}, out.Triple(2))
}

func TestSieveAndExpandTriple(t *testing.T) {
	ts := knowledge.NewTripleSource()
	for _, e := range []string{"A", "B", "C"} {
		ts.Entities.GetOrCreate(e)
	}
	ts.Add(&ts.Train, "A", "r", "B")

	batch, p, slot, err := SieveAndExpandTriple(ts, "A", "r", "?")
	require.NoError(t, err)
	assert.Equal(t, knowledge.PredictTail, p)
	assert.Equal(t, 2, slot)
	assert.Equal(t, 3, batch.Len())

	batch, p, _, err = SieveAndExpandTriple(ts, "A", "_", "B")
	require.NoError(t, err)
	assert.Equal(t, knowledge.PredictRelation, p)
	assert.Equal(t, 1, batch.Len())

	for _, q := range [][3]string{{"?", "r", "?"}, {"A", "r", "B"}, {"A", "x", "?"}} {
		_, _, _, err := SieveAndExpandTriple(ts, q[0], q[1], q[2])
		var qerr *QueryError
		assert.ErrorAs(t, err, &qerr, "%v", q)
	}
}
