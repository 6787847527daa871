package models

import (
	"math"
	"strings"
	"testing"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/data"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/cnclabs/kgekit/pkg/nn"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource() *knowledge.TripleSource {
	ts := knowledge.NewTripleSource()
	ts.Add(&ts.Train, "A", "r", "B")
	ts.Add(&ts.Train, "B", "s", "C")
	ts.Add(&ts.Train, "C", "r", "D")
	return ts
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.EmbeddingSize = 3
	cfg.Margin = 5
	cfg.Lambda = 0.01
	cfg.Seed = 3
	return cfg
}

func batches() (data.Tensor, data.Tensor) {
	pos := data.ConvertTriples([]knowledge.Triple{{Head: 0, Relation: 0, Tail: 1}, {Head: 1, Relation: 1, Tail: 2}})
	neg := data.ConvertTriples([]knowledge.Triple{{Head: 3, Relation: 0, Tail: 1}, {Head: 0, Relation: 0, Tail: 2}, {Head: 1, Relation: 0, Tail: 2}, {Head: 1, Relation: 1, Tail: 0}})
	return pos, neg
}

func lossSum(t *testing.T, m nn.Model, pos, neg data.Tensor) float64 {
	loss, err := m.Forward(pos, neg)
	require.NoError(t, err)
	return loss.Sum()
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	const eps = 1e-6
	for _, name := range Names() {
		f, err := Lookup(name)
		require.NoError(t, err)
		m, err := f.New(testSource(), testConfig())
		require.NoError(t, err)

		pos, neg := batches()
		loss, err := m.Forward(pos, neg)
		require.NoError(t, err)
		for _, p := range m.Parameters() {
			p.ZeroGrad()
		}
		loss.Backward()

		for _, p := range m.Parameters() {
			for i := range p.Value {
				orig := p.Value[i]
				p.Value[i] = orig + eps
				plus := lossSum(t, m, pos, neg)
				p.Value[i] = orig - eps
				minus := lossSum(t, m, pos, neg)
				p.Value[i] = orig

				numeric := (plus - minus) / (2 * eps)
				assert.InDelta(t, numeric, p.Grad[i], 1e-4, "%s %s[%d]", name, p.Name, i)
			}
		}
	}
}

func TestDataParallelMatchesSingle(t *testing.T) {
	for _, name := range Names() {
		f, err := Lookup(name)
		require.NoError(t, err)

		single, err := f.New(testSource(), testConfig())
		require.NoError(t, err)
		base, err := f.New(testSource(), testConfig())
		require.NoError(t, err)
		parallel := nn.Wrap(base, config.StrategyDataParallel, 2)

		pos, neg := batches()
		want, err := single.Forward(pos, neg)
		require.NoError(t, err)
		got, err := parallel.Forward(pos, neg)
		require.NoError(t, err)
		assert.InDelta(t, want.Sum(), got.Sum(), 1e-9, name)

		want.Backward()
		got.Backward()
		for i, p := range single.Parameters() {
			assert.InDeltaSlice(t, p.Grad, parallel.Parameters()[i].Grad, 1e-9, name)
		}
	}
}

func TestScoreShape(t *testing.T) {
	for _, name := range Names() {
		f, err := Lookup(name)
		require.NoError(t, err)
		m, err := f.New(testSource(), testConfig())
		require.NoError(t, err)

		scores, err := m.Score(data.ExpandTriple(knowledge.Triple{Head: 0, Relation: 0, Tail: 1}, knowledge.PredictTail, 4))
		require.NoError(t, err)
		assert.Len(t, scores, 4, name)
	}
}

func TestScoreRejectsNaN(t *testing.T) {
	for _, name := range Names() {
		f, err := Lookup(name)
		require.NoError(t, err)
		m, err := f.New(testSource(), testConfig())
		require.NoError(t, err)
		for _, p := range m.Parameters() {
			for i := range p.Value {
				p.Value[i] = math.NaN()
			}
		}

		_, err = m.Score(data.ExpandTriple(knowledge.Triple{Head: 0, Relation: 0, Tail: 1}, knowledge.PredictTail, 4))
		assert.Error(t, err, name)
	}
}

func TestLookup(t *testing.T) {
	f, err := Lookup("ComplEx")
	require.NoError(t, err)
	assert.True(t, f.RequireLabels())

	f, err = Lookup("transe")
	require.NoError(t, err)
	assert.False(t, f.RequireLabels())

	_, err = Lookup("rescal")
	var cerr *config.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "model", cerr.Field)
}

func TestTransERejectsBadNorm(t *testing.T) {
	f, err := Lookup("transe")
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Norm = 3
	_, err = f.New(testSource(), cfg)
	assert.Error(t, err)
}

func TestSaveEmbeddings(t *testing.T) {
	fs := afero.NewMemMapFs()
	source := testSource()
	f, err := Lookup("transe")
	require.NoError(t, err)
	m, err := f.New(source, testConfig())
	require.NoError(t, err)

	written, err := SaveEmbeddings(fs, "out", m, source)
	require.NoError(t, err)
	require.Len(t, written, 2)

	buf, err := afero.ReadFile(fs, "out/entity_embeddings.txt")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(buf)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "4 3", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "A "))
	assert.Len(t, strings.Fields(lines[4]), 4)

	buf, err = afero.ReadFile(fs, "out/relation_embeddings.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(buf), "2 3\nr "))
}

func TestRotatEAdversarialWeights(t *testing.T) {
	f, err := Lookup("rotate")
	require.NoError(t, err)
	cfg := testConfig()
	pos, neg := batches()

	uniform, err := f.New(testSource(), cfg)
	require.NoError(t, err)
	plain, err := uniform.Forward(pos, neg)
	require.NoError(t, err)

	cfg.AdversarialTemperature = 1
	adversarial, err := f.New(testSource(), cfg)
	require.NoError(t, err)
	weighted, err := adversarial.Forward(pos, neg)
	require.NoError(t, err)

	// weights of each positive sum to one instead of k
	assert.Less(t, weighted.Sum(), plain.Sum())
	assert.Greater(t, weighted.Sum(), 0.0)
}
