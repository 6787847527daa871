package stats

import (
	"encoding/json"
	"testing"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/drawer"
	"github.com/cnclabs/kgekit/pkg/evaluation"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result() *evaluation.PredictionResult {
	return &evaluation.PredictionResult{
		Directions: []knowledge.PredictionType{knowledge.PredictHead, knowledge.PredictTail},
		Ranks: map[knowledge.PredictionType][]evaluation.Rank{
			knowledge.PredictHead: {{Raw: 1, Filtered: 1}, {Raw: 4, Filtered: 2}},
			knowledge.PredictTail: {{Raw: 10, Filtered: 5}, {Raw: 2, Filtered: 2}},
		},
	}
}

func TestCompute(t *testing.T) {
	s := Compute(result(), []int{1, 3})

	head, ok := s.Find(knowledge.PredictHead)
	require.True(t, ok)
	assert.Equal(t, 2, head.Count)
	assert.InDelta(t, 2.5, head.MeanRank, 1e-9)
	assert.InDelta(t, 1.5, head.MeanFilteredRank, 1e-9)
	assert.InDelta(t, (1+0.25)/2, head.MRR, 1e-9)
	assert.InDelta(t, 0.5, head.Hits[1], 1e-9)
	assert.InDelta(t, 0.5, head.Hits[3], 1e-9)
	assert.InDelta(t, 1.0, head.FilteredHits[3], 1e-9)

	_, ok = s.Find(knowledge.PredictRelation)
	assert.False(t, ok)

	assert.Equal(t, Overall, s.Overall.Direction)
	assert.Equal(t, 4, s.Overall.Count)
	assert.InDelta(t, 4.25, s.Overall.MeanRank, 1e-9)
	assert.InDelta(t, 2.5, s.Overall.MeanFilteredRank, 1e-9)
	assert.InDelta(t, 0.25, s.Overall.Hits[1], 1e-9)
	assert.InDelta(t, 0.75, s.Overall.FilteredHits[3], 1e-9)

	assert.Contains(t, head.String(), "hits@1 0.5000")
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(&evaluation.PredictionResult{}, []int{1})
	assert.Empty(t, s.Directions)
	assert.Zero(t, s.Overall.Count)
	assert.Zero(t, s.Overall.MeanRank)
}

func TestReporterFillsDrawer(t *testing.T) {
	cfg := config.Default()
	cfg.Hits = []int{1}
	d := drawer.New()
	r := NewReporter(cfg, nil, d)
	r.Prepare(true)

	r.ReportLoss(1, 3)
	r.ReportLoss(2, 2)
	r.ReportPrediction(result(), 1, "validation")

	raw := d.DumpRawData()
	assert.Equal(t, []drawer.Point{{X: 1, Y: 3}, {X: 2, Y: 2}}, raw[LossFeatureKey].Lines["loss"])
	assert.Equal(t, []drawer.Point{{X: 1, Y: 2.5}}, raw[MeanRankFeatureKey].Lines["head"])
	assert.Equal(t, []drawer.Point{{X: 1, Y: 0.25}}, raw[HitsFeatureKey].Lines["hits@1"])
	assert.Equal(t, []string{LossFeatureKey, MeanRankFeatureKey, HitsFeatureKey}, d.Keys())
}

func TestReporterWithoutDrawer(t *testing.T) {
	r := NewReporter(config.Default(), nil, nil)
	r.Prepare(true)
	r.ReportLoss(1, 1)
	s := r.ReportPrediction(result(), 1, "test")
	assert.Len(t, s.Directions, 2)
}

func TestWriteLoggingData(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := config.Default()
	cfg.Name = "run"

	d := drawer.New()
	d.CreatePlot(LossFeatureKey, GenDrawerOption(cfg, "Loss value"))
	require.NoError(t, d.Append(LossFeatureKey, "loss", 1, 0.5))

	path, err := WriteLoggingData(fs, d.DumpRawData(), cfg)
	require.NoError(t, err)
	assert.Contains(t, path, "logs/run/")

	buf, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	var got LoggingData
	require.NoError(t, json.Unmarshal(buf, &got))
	assert.Equal(t, "run", got.Name)
	assert.NotEmpty(t, got.RunID)
	assert.Equal(t, []drawer.Point{{X: 1, Y: 0.5}}, got.Plots[LossFeatureKey].Lines["loss"])
}
