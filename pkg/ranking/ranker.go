// Package ranking computes the raw and filtered rank of a true triple among
// all of its corruptions.
package ranking

import (
	"math"

	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/pkg/errors"
)

type pair struct {
	a, b int64
}

// Ranker holds the known-true triples of every split. It is read-only after
// New and safe for concurrent use.
type Ranker struct {
	tails     map[pair]map[int64]struct{} // (head, relation) -> tails
	heads     map[pair]map[int64]struct{} // (relation, tail) -> heads
	relations map[pair]map[int64]struct{} // (head, tail) -> relations
}

// Request is one ranking task: Scores[i] is the score of the triple with
// candidate id i in slot Index.
type Request struct {
	Scores []float64
	Type   knowledge.PredictionType
	Triple knowledge.Triple
	Index  int
}

// New indexes the known-true triples of the given splits
func New(splits ...[]knowledge.Triple) *Ranker {
	r := &Ranker{
		tails:     make(map[pair]map[int64]struct{}),
		heads:     make(map[pair]map[int64]struct{}),
		relations: make(map[pair]map[int64]struct{}),
	}
	for _, split := range splits {
		for _, t := range split {
			add(r.tails, pair{t.Head, t.Relation}, t.Tail)
			add(r.heads, pair{t.Relation, t.Tail}, t.Head)
			add(r.relations, pair{t.Head, t.Tail}, t.Relation)
		}
	}
	return r
}

func add(idx map[pair]map[int64]struct{}, k pair, v int64) {
	set, ok := idx[k]
	if !ok {
		set = make(map[int64]struct{})
		idx[k] = set
	}
	set[v] = struct{}{}
}

// known returns the ids that complete t into a known-true triple in the slot
// being predicted
func (r *Ranker) known(p knowledge.PredictionType, t knowledge.Triple) map[int64]struct{} {
	switch p {
	case knowledge.PredictHead:
		return r.heads[pair{t.Relation, t.Tail}]
	case knowledge.PredictRelation:
		return r.relations[pair{t.Head, t.Tail}]
	default:
		return r.tails[pair{t.Head, t.Relation}]
	}
}

// Rank returns the 1-based raw and filtered rank of the true candidate.
// Higher scores rank first; ties go to the lower candidate id. The filtered
// rank ignores candidates that form another known-true triple.
func (r *Ranker) Rank(req Request) (raw, filtered int, err error) {
	if req.Index != req.Type.Slot() {
		return 0, 0, errors.Errorf("slot %d does not match prediction type %s", req.Index, req.Type)
	}
	target := req.Triple.Get(req.Index)
	if target < 0 || target >= int64(len(req.Scores)) {
		return 0, 0, errors.Errorf("true id %d is outside %d scores", target, len(req.Scores))
	}

	known := r.known(req.Type, req.Triple)
	s := req.Scores[target]
	raw, filtered = 1, 1
	for i, c := range req.Scores {
		id := int64(i)
		if math.IsNaN(c) {
			return 0, 0, errors.Errorf("score of candidate %d is NaN", id)
		}
		if id == target {
			continue
		}
		if c > s || (c == s && id < target) {
			raw++
			if _, ok := known[id]; !ok {
				filtered++
			}
		}
	}
	return raw, filtered, nil
}
