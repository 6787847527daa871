package data

import (
	"math/rand"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/cnclabs/kgekit/pkg/sampling"
)

const maxCorruptRetries = 10

// corruptor generates negative triples by swapping the head, tail or relation of a positive
type corruptor struct {
	numEntityNegatives   int
	numRelationNegatives int

	entities  *sampling.AliasTable
	relations *sampling.AliasTable

	// probability of corrupting the head, per relation
	headProb map[int64]float64
}

func newCorruptor(source *knowledge.TripleSource, cfg config.Config) *corruptor {
	entityFreq := make([]float64, source.NumEntities())
	relationFreq := make([]float64, source.NumRelations())
	for _, t := range source.Train {
		entityFreq[t.Head]++
		entityFreq[t.Tail]++
		relationFreq[t.Relation]++
	}
	if cfg.NegativePower == 0 {
		fill(entityFreq, 1)
		fill(relationFreq, 1)
	}

	c := &corruptor{
		numEntityNegatives:   cfg.NegativeEntity,
		numRelationNegatives: cfg.NegativeRelation,
		entities:             sampling.NewAliasTable(entityFreq, cfg.NegativePower),
		relations:            sampling.NewAliasTable(relationFreq, cfg.NegativePower),
	}
	if cfg.Sampling == config.SamplingBernoulli {
		c.headProb = bernoulliHeadProbabilities(source.Train)
	}
	return c
}

func fill(xs []float64, v float64) {
	for i := range xs {
		xs[i] = v
	}
}

// bernoulliHeadProbabilities computes tph/(tph+hpt) for every relation, where
// tph is the average number of tails per head and hpt the average number of heads per tail.
func bernoulliHeadProbabilities(train []knowledge.Triple) map[int64]float64 {
	tails := make(map[int64]map[int64]int)
	heads := make(map[int64]map[int64]int)
	for _, t := range train {
		if tails[t.Relation] == nil {
			tails[t.Relation] = make(map[int64]int)
			heads[t.Relation] = make(map[int64]int)
		}
		tails[t.Relation][t.Head]++
		heads[t.Relation][t.Tail]++
	}

	probs := make(map[int64]float64, len(tails))
	for r := range tails {
		tph := average(tails[r])
		hpt := average(heads[r])
		probs[r] = tph / (tph + hpt)
	}
	return probs
}

func average(counts map[int64]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	return float64(total) / float64(len(counts))
}

// ratio is the number of negatives per positive
func (c *corruptor) ratio() int {
	return c.numEntityNegatives + c.numRelationNegatives
}

// corrupt appends the negatives of t to dst
func (c *corruptor) corrupt(dst []knowledge.Triple, t knowledge.Triple, rng *rand.Rand) []knowledge.Triple {
	for i := 0; i < c.numEntityNegatives; i++ {
		p := 0.5
		if c.headProb != nil {
			p = c.headProb[t.Relation]
		}
		slot := 2
		if rng.Float64() < p {
			slot = 0
		}
		dst = append(dst, c.replace(t, slot, c.entities, rng))
	}
	for i := 0; i < c.numRelationNegatives; i++ {
		dst = append(dst, c.replace(t, 1, c.relations, rng))
	}
	return dst
}

func (c *corruptor) replace(t knowledge.Triple, slot int, table *sampling.AliasTable, rng *rand.Rand) knowledge.Triple {
	original := t.Get(slot)
	id := table.Sample(rng)
	for retry := 0; id == original && retry < maxCorruptRetries; retry++ {
		id = table.Sample(rng)
	}
	if n := int64(table.Len()); id == original && n > 1 {
		// heavily skewed table, pick any other id uniformly
		id = (original + 1 + rng.Int63n(n-1)) % n
	}
	return t.With(slot, id)
}
