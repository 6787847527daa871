package data

import (
	"fmt"

	"github.com/cnclabs/kgekit/pkg/knowledge"
)

// QueryError reports a malformed interactive query
type QueryError struct {
	Head, Relation, Tail string
	Reason               string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query (%s, %s, %s): %s", e.Head, e.Relation, e.Tail, e.Reason)
}

// IsWildcard reports whether s marks the element to predict
func IsWildcard(s string) bool {
	return s == "" || s == "?" || s == "_"
}

// SieveAndExpandTriple determines which element of (head, relation, tail) is missing
// and expands the query into one row per candidate for that slot. Exactly one
// element must be a wildcard and the others must be known names.
func SieveAndExpandTriple(source *knowledge.TripleSource, head, relation, tail string) (Tensor, knowledge.PredictionType, int, error) {
	names := [3]string{head, relation, tail}
	vocabs := [3]*knowledge.Vocabulary{source.Entities, source.Relations, source.Entities}

	missing := -1
	var known knowledge.Triple
	for slot, name := range names {
		if IsWildcard(name) {
			if missing >= 0 {
				return Tensor{}, 0, 0, &QueryError{head, relation, tail, "more than one element is missing"}
			}
			missing = slot
			continue
		}
		id, ok := vocabs[slot].ID(name)
		if !ok {
			return Tensor{}, 0, 0, &QueryError{head, relation, tail, fmt.Sprintf("unknown name %q", name)}
		}
		known = known.With(slot, id)
	}
	if missing < 0 {
		return Tensor{}, 0, 0, &QueryError{head, relation, tail, "no element is missing"}
	}

	p, err := knowledge.PredictionTypeForSlot(missing)
	if err != nil {
		return Tensor{}, 0, 0, err
	}
	n := source.NumEntities()
	if p == knowledge.PredictRelation {
		n = source.NumRelations()
	}
	return ExpandTriple(known, p, n), p, missing, nil
}
