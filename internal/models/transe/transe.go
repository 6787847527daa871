package transe

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
const Name = "transe"

// TransE implements the TransE (Translating Embeddings) algorithm
// TransE models relations as translations in the embedding space: h + r ≈ t
// where h is head entity, r is relation, t is tail entity
type TransE struct {
	nn.Base

	dim int

	// Embeddings
	entities  *nn.Parameter // Entity embeddings
	relations *nn.Parameter // Relation embeddings

	// TransE parameters
	margin float64 // Margin for ranking loss (default: 1.0)
	norm   int     // L1 or L2 norm (1 or 2, default: 2)
}

// New creates a TransE model sized for source
func New(source *knowledge.TripleSource, cfg config.Config) (*TransE, error) {
	if cfg.Norm != 1 && cfg.Norm != 2 {
		return nil, &config.ConfigurationError{Field: "norm", Reason: "must be 1 or 2"}
	}
	if source.NumEntities() == 0 || source.NumRelations() == 0 {
		return nil, errors.New("transe needs at least one entity and one relation")
	}

	te := &TransE{
		dim:       cfg.EmbeddingSize,
		entities:  nn.NewParameter("entity_embeddings", int(source.NumEntities()), cfg.EmbeddingSize),
		relations: nn.NewParameter("relation_embeddings", int(source.NumRelations()), cfg.EmbeddingSize),
		margin:    cfg.Margin,
		norm:      cfg.Norm,
	}
	te.Register(te.entities, te.relations)

	// Initialize embeddings with random values in (-0.5/dim, 0.5/dim)
	rng := rand.New(rand.NewSource(cfg.Seed))
	te.entities.InitUniform(rng, 0.5/float64(te.dim))
	te.relations.InitUniform(rng, 0.5/float64(te.dim))
	// Relations are NOT normalized
	te.Constrain()
	return te, nil
}

// Entities returns the entity embeddings
func (te *TransE) Entities() *nn.Parameter { return te.entities }

// Relations returns the relation embeddings
func (te *TransE) Relations() *nn.Parameter { return te.relations }

// Constrain normalizes every entity embedding to unit length (L2 norm)
func (te *TransE) Constrain() {
	for i := 0; i < te.entities.Rows; i++ {
		row := te.entities.Row(int64(i))
		if norm := floats.Norm(row, 2); norm > 1e-10 {
			floats.Scale(1/norm, row)
		}
	}
}

// residual returns h + r - t
func (te *TransE) residual(t knowledge.Triple) []float64 {
	diff := make([]float64, te.dim)
	floats.AddTo(diff, te.entities.Row(t.Head), te.relations.Row(t.Relation))
	floats.Sub(diff, te.entities.Row(t.Tail))
	return diff
}

// distance computes ||h + r - t||
// Lower distance = better fit
func (te *TransE) distance(diff []float64) float64 {
	return floats.Norm(diff, float64(te.norm))
}

// direction is the gradient of the distance with respect to the residual
func (te *TransE) direction(diff []float64, dist float64) []float64 {
	g := make([]float64, len(diff))
	if te.norm == 1 {
		// L1: sign of gradient
		for d, v := range diff {
			switch {
			case v > 0:
				g[d] = 1
			case v < 0:
				g[d] = -1
			}
		}
		return g
	}
	if dist > 1e-12 {
		floats.AddScaled(g, 1/dist, diff)
	}
	return g
}

// accumulate adds scale * d(distance)/d(params) of triple t into grads
func (te *TransE) accumulate(grads *nn.Gradients, t knowledge.Triple, dir []float64, scale float64) {
	floats.AddScaled(grads.Row(te.entities, t.Head), scale, dir)
	floats.AddScaled(grads.Row(te.relations, t.Relation), scale, dir)
	floats.AddScaled(grads.Row(te.entities, t.Tail), -scale, dir)
}

// Forward computes, for every positive triple, the margin-based ranking loss
// sum_j max(0, margin + d(pos) - d(neg_j)) over its negatives
func (te *TransE) Forward(positive, negative data.Tensor) (*nn.Loss, error) {
	n := positive.Len()
	if n == 0 {
		return nn.NewLoss(nil, nil), nil
	}
	if negative.Len() == 0 || negative.Len()%n != 0 {
		return nil, errors.Errorf("transe needs a multiple of %d negatives, got %d", n, negative.Len())
	}
	k := negative.Len() / n

	type active struct {
		pos, neg       knowledge.Triple
		posDir, negDir []float64
	}
	values := make([]float64, n)
	var pairs []active
	for i := 0; i < n; i++ {
		pos := positive.Triple(i)
		posDiff := te.residual(pos)
		posDist := te.distance(posDiff)
		var posDir []float64

		for j := i * k; j < (i+1)*k; j++ {
			neg := negative.Triple(j)
			negDiff := te.residual(neg)
			negDist := te.distance(negDiff)

			loss := te.margin + posDist - negDist
			if loss <= 0 {
				continue
			}
			values[i] += loss
			if posDir == nil {
				posDir = te.direction(posDiff, posDist)
			}
			pairs = append(pairs, active{pos, neg, posDir, te.direction(negDiff, negDist)})
		}
	}

	return nn.NewLoss(values, func(grads *nn.Gradients) {
		for _, p := range pairs {
			te.accumulate(grads, p.pos, p.posDir, 1)
			te.accumulate(grads, p.neg, p.negDir, -1)
		}
	}), nil
}

// Score returns -||h + r - t|| for every row
func (te *TransE) Score(batch data.Tensor) ([]float64, error) {
	out := make([]float64, batch.Len())
	for i := range out {
		d := te.distance(te.residual(batch.Triple(i)))
		if math.IsNaN(d) {
			return nil, errors.Errorf("transe produced NaN for row %d", i)
		}
		out[i] = -d
	}
	return out, nil
}
