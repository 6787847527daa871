package evaluation

import (
	"sort"

	"github.com/cnclabs/kgekit/pkg/knowledge"
)

// Candidate is one scored entry of a ranked candidate list
type Candidate struct {
	Rank  int
	ID    int64
	Name  string
	Score float64
}

// TopCandidates returns the k best candidates of scores, best first, with the
// same tie rule as the ranker. names resolves candidate ids and may be nil.
func TopCandidates(scores []float64, k int, names *knowledge.Vocabulary) []Candidate {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k <= 0 || k > len(order) {
		k = len(order)
	}
	top := make([]Candidate, k)
	for i := 0; i < k; i++ {
		id := int64(order[i])
		top[i] = Candidate{Rank: i + 1, ID: id, Score: scores[id]}
		if names != nil {
			top[i].Name = names.Name(id)
		}
	}
	return top
}
