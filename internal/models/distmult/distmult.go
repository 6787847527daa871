package distmult

import (
	"math"
	"math/rand"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/data"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/cnclabs/kgekit/pkg/nn"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Name is the registry name of the model
const Name = "distmult"

// DistMult scores a triple with the bilinear diagonal product <h, r, t>
type DistMult struct {
	nn.Base

	dim       int
	entities  *nn.Parameter
	relations *nn.Parameter
	margin    float64
}

// New creates a DistMult model sized for source
func New(source *knowledge.TripleSource, cfg config.Config) (*DistMult, error) {
	if source.NumEntities() == 0 || source.NumRelations() == 0 {
		return nil, errors.New("distmult needs at least one entity and one relation")
	}

	dm := &DistMult{
		dim:       cfg.EmbeddingSize,
		entities:  nn.NewParameter("entity_embeddings", int(source.NumEntities()), cfg.EmbeddingSize),
		relations: nn.NewParameter("relation_embeddings", int(source.NumRelations()), cfg.EmbeddingSize),
		margin:    cfg.Margin,
	}
	dm.Register(dm.entities, dm.relations)

	rng := rand.New(rand.NewSource(cfg.Seed))
	dm.entities.InitUniform(rng, 1/float64(dm.dim))
	dm.relations.InitUniform(rng, 1/float64(dm.dim))
	dm.Constrain()
	return dm, nil
}

// Constrain keeps entity embeddings inside the unit ball
func (dm *DistMult) Constrain() {
	for i := 0; i < dm.entities.Rows; i++ {
		row := dm.entities.Row(int64(i))
		if norm := floats.Norm(row, 2); norm > 1 {
			floats.Scale(1/norm, row)
		}
	}
}

func (dm *DistMult) score(t knowledge.Triple) float64 {
	h, r, tl := dm.entities.Row(t.Head), dm.relations.Row(t.Relation), dm.entities.Row(t.Tail)
	s := 0.0
	for d := 0; d < dm.dim; d++ {
		s += h[d] * r[d] * tl[d]
	}
	return s
}

// accumulate adds scale * d(score)/d(params) of t into grads
func (dm *DistMult) accumulate(grads *nn.Gradients, t knowledge.Triple, scale float64) {
	h, r, tl := dm.entities.Row(t.Head), dm.relations.Row(t.Relation), dm.entities.Row(t.Tail)
	gh, gr, gt := grads.Row(dm.entities, t.Head), grads.Row(dm.relations, t.Relation), grads.Row(dm.entities, t.Tail)
	for d := 0; d < dm.dim; d++ {
		gh[d] += scale * r[d] * tl[d]
		gr[d] += scale * h[d] * tl[d]
		gt[d] += scale * h[d] * r[d]
	}
}

// Forward computes, for every positive triple, the margin-based ranking loss
// sum_j max(0, margin - s(pos) + s(neg_j)) over its negatives
func (dm *DistMult) Forward(positive, negative data.Tensor) (*nn.Loss, error) {
	n := positive.Len()
	if n == 0 {
		return nn.NewLoss(nil, nil), nil
	}
	if negative.Len() == 0 || negative.Len()%n != 0 {
		return nil, errors.Errorf("distmult needs a multiple of %d negatives, got %d", n, negative.Len())
	}
	k := negative.Len() / n

	values := make([]float64, n)
	var pos, neg []knowledge.Triple
	for i := 0; i < n; i++ {
		p := positive.Triple(i)
		ps := dm.score(p)
		for j := i * k; j < (i+1)*k; j++ {
			q := negative.Triple(j)
			if loss := dm.margin - ps + dm.score(q); loss > 0 {
				values[i] += loss
				pos = append(pos, p)
				neg = append(neg, q)
			}
		}
	}

	return nn.NewLoss(values, func(grads *nn.Gradients) {
		for i := range pos {
			dm.accumulate(grads, pos[i], -1)
			dm.accumulate(grads, neg[i], 1)
		}
	}), nil
}

// Score returns <h, r, t> for every row
func (dm *DistMult) Score(batch data.Tensor) ([]float64, error) {
	out := make([]float64, batch.Len())
	for i := range out {
		s := dm.score(batch.Triple(i))
		if math.IsNaN(s) {
			return nil, errors.Errorf("distmult produced NaN for row %d", i)
		}
		out[i] = s
	}
	return out, nil
}
