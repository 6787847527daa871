// Package stats aggregates link prediction ranks into metrics and reports
// them to the log, the drawer and the logging data dump.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cnclabs/kgekit/pkg/evaluation"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/montanaflynn/stats"
)

// Overall names the metrics over every direction
const Overall = "overall"

// Metrics are the aggregates of one direction, or of all of them
type Metrics struct {
	Direction string `json:"direction"`
	Count     int    `json:"count"`

	MeanRank         float64 `json:"mean_rank"`
	MeanFilteredRank float64 `json:"mean_filtered_rank"`
	MRR              float64 `json:"mrr"`
	FilteredMRR      float64 `json:"filtered_mrr"`

	// Hits maps k to the fraction of raw ranks <= k
	Hits map[int]float64 `json:"hits"`
	// FilteredHits maps k to the fraction of filtered ranks <= k
	FilteredHits map[int]float64 `json:"filtered_hits"`
}

// String formats the metrics on one line
func (m Metrics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: mean rank %.2f, filtered %.2f, mrr %.4f, filtered %.4f",
		m.Direction, m.MeanRank, m.MeanFilteredRank, m.MRR, m.FilteredMRR)
	for _, k := range sortedKeys(m.Hits) {
		fmt.Fprintf(&b, ", hits@%d %.4f (filtered %.4f)", k, m.Hits[k], m.FilteredHits[k])
	}
	return b.String()
}

// Summary holds per direction metrics followed by the overall ones
type Summary struct {
	Directions []Metrics `json:"directions"`
	Overall    Metrics   `json:"overall"`
}

// Compute aggregates a prediction result. hits lists the cut-offs of hits@k.
func Compute(result *evaluation.PredictionResult, hits []int) Summary {
	var s Summary
	var all []evaluation.Rank
	for _, d := range result.Directions {
		ranks := result.Ranks[d]
		s.Directions = append(s.Directions, compute(d.String(), ranks, hits))
		all = append(all, ranks...)
	}
	s.Overall = compute(Overall, all, hits)
	return s
}

func compute(direction string, ranks []evaluation.Rank, hits []int) Metrics {
	m := Metrics{
		Direction:    direction,
		Count:        len(ranks),
		Hits:         make(map[int]float64, len(hits)),
		FilteredHits: make(map[int]float64, len(hits)),
	}
	if len(ranks) == 0 {
		return m
	}

	raw := make(stats.Float64Data, len(ranks))
	filtered := make(stats.Float64Data, len(ranks))
	rawRecip := make(stats.Float64Data, len(ranks))
	filteredRecip := make(stats.Float64Data, len(ranks))
	for i, r := range ranks {
		raw[i] = float64(r.Raw)
		filtered[i] = float64(r.Filtered)
		rawRecip[i] = 1 / float64(r.Raw)
		filteredRecip[i] = 1 / float64(r.Filtered)
	}

	m.MeanRank, _ = stats.Mean(raw)
	m.MeanFilteredRank, _ = stats.Mean(filtered)
	m.MRR, _ = stats.Mean(rawRecip)
	m.FilteredMRR, _ = stats.Mean(filteredRecip)
	for _, k := range hits {
		m.Hits[k] = fractionAtMost(raw, k)
		m.FilteredHits[k] = fractionAtMost(filtered, k)
	}
	return m
}

func fractionAtMost(ranks stats.Float64Data, k int) float64 {
	n := 0
	for _, r := range ranks {
		if r <= float64(k) {
			n++
		}
	}
	return float64(n) / float64(len(ranks))
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Find returns the metrics of a direction
func (s Summary) Find(p knowledge.PredictionType) (Metrics, bool) {
	for _, m := range s.Directions {
		if m.Direction == p.String() {
			return m, true
		}
	}
	return Metrics{}, false
}
