package nn

import (
	"math/rand"
	"testing"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/data"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bilinear scores a triple as w[h]*w[t] and trains on score(neg) - score(pos)
type bilinear struct {
	Base
	w *Parameter
}

func newBilinear(n int) *bilinear {
	m := &bilinear{w: NewParameter("w", n, 1)}
	m.w.InitUniform(rand.New(rand.NewSource(3)), 1)
	m.Register(m.w)
	return m
}

func (m *bilinear) score(h, t int64) float64 {
	return m.w.Row(h)[0] * m.w.Row(t)[0]
}

func (m *bilinear) Forward(pos, neg data.Tensor) (*Loss, error) {
	k := neg.Len() / pos.Len()
	values := make([]float64, pos.Len())
	for i := 0; i < pos.Len(); i++ {
		for j := i * k; j < (i+1)*k; j++ {
			values[i] += m.score(neg.Heads[j], neg.Tails[j]) - m.score(pos.Heads[i], pos.Tails[i])
		}
	}
	return NewLoss(values, func(g *Gradients) {
		for i := 0; i < pos.Len(); i++ {
			h, t := pos.Heads[i], pos.Tails[i]
			g.Row(m.w, h)[0] -= float64(k) * m.w.Row(t)[0]
			g.Row(m.w, t)[0] -= float64(k) * m.w.Row(h)[0]
		}
		for j := 0; j < neg.Len(); j++ {
			h, t := neg.Heads[j], neg.Tails[j]
			g.Row(m.w, h)[0] += m.w.Row(t)[0]
			g.Row(m.w, t)[0] += m.w.Row(h)[0]
		}
	}), nil
}

func (m *bilinear) Score(batch data.Tensor) ([]float64, error) {
	out := make([]float64, batch.Len())
	for i := range out {
		out[i] = m.score(batch.Heads[i], batch.Tails[i])
	}
	return out, nil
}

func batch() (data.Tensor, data.Tensor) {
	pos := data.ConvertTriples([]knowledge.Triple{{Head: 0, Relation: 0, Tail: 1}, {Head: 1, Relation: 0, Tail: 2}, {Head: 2, Relation: 0, Tail: 3}, {Head: 3, Relation: 0, Tail: 4}, {Head: 4, Relation: 0, Tail: 0}})
	var negs []knowledge.Triple
	for i := 0; i < pos.Len(); i++ {
		negs = append(negs,
			knowledge.Triple{Head: pos.Heads[i], Tail: (pos.Tails[i] + 2) % 5},
			knowledge.Triple{Head: (pos.Heads[i] + 3) % 5, Tail: pos.Tails[i]})
	}
	return pos, data.ConvertTriples(negs)
}

func TestDataParallelMatchesSingleDevice(t *testing.T) {
	pos, neg := batch()

	single := newBilinear(5)
	parallel := Wrap(newBilinear(5), config.StrategyDataParallel, 3)
	require.IsType(t, &DataParallel{}, parallel)

	l1, err := single.Forward(pos, neg)
	require.NoError(t, err)
	l2, err := parallel.Forward(pos, neg)
	require.NoError(t, err)
	assert.Equal(t, l1.Values, l2.Values)
	assert.InDelta(t, l1.Sum(), l2.Sum(), 1e-12)

	l1.Backward()
	l2.Backward()
	assert.InDeltaSlice(t, single.w.Grad, parallel.Parameters()[0].Grad, 1e-12)

	expanded := data.ExpandTriple(knowledge.Triple{Head: 1, Tail: 2}, knowledge.PredictTail, 5)
	s1, err := single.Score(expanded)
	require.NoError(t, err)
	s2, err := parallel.Score(expanded)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestWrapSingle(t *testing.T) {
	m := newBilinear(2)
	assert.Same(t, m, Wrap(m, config.StrategySingle, 4))
	assert.Same(t, m, Wrap(m, config.StrategyDataParallel, 1))
}

func TestDataParallelRejectsRaggedNegatives(t *testing.T) {
	pos, neg := batch()
	_, err := Wrap(newBilinear(5), config.StrategyDataParallel, 2).Forward(pos, neg.Slice(0, 3))
	assert.Error(t, err)
}

func TestStateDictRestore(t *testing.T) {
	m := newBilinear(3)
	sd := m.StateDict()

	m.w.Value[0] = 42
	require.NoError(t, m.LoadStateDict(sd))
	assert.Equal(t, sd["w"].Values, m.w.Value)

	// snapshots do not alias the live weights
	m.w.Value[1] = 7
	assert.NotEqual(t, 7.0, sd["w"].Values[1])

	assert.Error(t, m.LoadStateDict(StateDict{}))
	assert.Error(t, m.LoadStateDict(StateDict{"w": {Rows: 2, Cols: 1, Values: []float64{1, 2}}}))
}

func TestModes(t *testing.T) {
	m := newBilinear(1)
	assert.False(t, m.Training())
	m.Train()
	assert.True(t, m.Training())
	m.Eval()
	assert.False(t, m.Training())
}
