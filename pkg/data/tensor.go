package data

import (
	"github.com/cnclabs/kgekit/pkg/knowledge"
)

// Tensor is the column-major numeric form of a triple batch consumed by models.
// Labels is only set when the loader collates labels (+1 positive, -1 negative).
type Tensor struct {
	Heads     []int64
	Relations []int64
	Tails     []int64
	Labels    []float64
}

// Len returns the number of rows
func (t Tensor) Len() int {
	return len(t.Heads)
}

// Triple returns row i as a triple
func (t Tensor) Triple(i int) knowledge.Triple {
	return knowledge.Triple{Head: t.Heads[i], Relation: t.Relations[i], Tail: t.Tails[i]}
}

// Label returns the label of row i, or fallback when labels were not collated
func (t Tensor) Label(i int, fallback float64) float64 {
	if t.Labels == nil {
		return fallback
	}
	return t.Labels[i]
}

// Slice returns rows [from, to) sharing the underlying arrays
func (t Tensor) Slice(from, to int) Tensor {
	s := Tensor{
		Heads:     t.Heads[from:to],
		Relations: t.Relations[from:to],
		Tails:     t.Tails[from:to],
	}
	if t.Labels != nil {
		s.Labels = t.Labels[from:to]
	}
	return s
}

// ConvertTriples converts triples to their tensor form
func ConvertTriples(triples []knowledge.Triple) Tensor {
	t := Tensor{
		Heads:     make([]int64, len(triples)),
		Relations: make([]int64, len(triples)),
		Tails:     make([]int64, len(triples)),
	}
	for i, tr := range triples {
		t.Heads[i] = tr.Head
		t.Relations[i] = tr.Relation
		t.Tails[i] = tr.Tail
	}
	return t
}

// ConvertBatch converts both halves of a batch, splitting collated labels
func ConvertBatch(b Batch) (positive, negative Tensor) {
	positive = ConvertTriples(b.Positive)
	negative = ConvertTriples(b.Negative)
	if b.Labels != nil {
		positive.Labels = b.Labels[:len(b.Positive)]
		negative.Labels = b.Labels[len(b.Positive):]
	}
	return positive, negative
}

// ExpandTriple substitutes every candidate id 0..n-1 into the predicted slot of t.
// Row i of the result is the candidate with id i.
func ExpandTriple(t knowledge.Triple, p knowledge.PredictionType, n int64) Tensor {
	out := Tensor{
		Heads:     make([]int64, n),
		Relations: make([]int64, n),
		Tails:     make([]int64, n),
	}
	slot := p.Slot()
	for i := int64(0); i < n; i++ {
		c := t.With(slot, i)
		out.Heads[i] = c.Head
		out.Relations[i] = c.Relation
		out.Tails[i] = c.Tail
	}
	return out
}
