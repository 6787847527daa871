package cplx

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
const Name = "complex"

// ComplEx implements Complex Embeddings for Knowledge Graphs
// Uses complex-valued embeddings to model symmetric and asymmetric relations.
// Real and imaginary parts are stored as separate parameters.
type ComplEx struct {
	nn.Base

	dim int

	entityRe, entityIm     *nn.Parameter
	relationRe, relationIm *nn.Parameter

	// L2 regularization weight
	lambda float64
}

// New creates a ComplEx model sized for source
func New(source *knowledge.TripleSource, cfg config.Config) (*ComplEx, error) {
	if source.NumEntities() == 0 || source.NumRelations() == 0 {
		return nil, errors.New("complex needs at least one entity and one relation")
	}

	ne, nr, dim := int(source.NumEntities()), int(source.NumRelations()), cfg.EmbeddingSize
	cx := &ComplEx{
		dim:        dim,
		entityRe:   nn.NewParameter("entity_re", ne, dim),
		entityIm:   nn.NewParameter("entity_im", ne, dim),
		relationRe: nn.NewParameter("relation_re", nr, dim),
		relationIm: nn.NewParameter("relation_im", nr, dim),
		lambda:     cfg.Lambda,
	}
	cx.Register(cx.entityRe, cx.entityIm, cx.relationRe, cx.relationIm)

	// Initialize with small random complex numbers
	rng := rand.New(rand.NewSource(cfg.Seed))
	bound := 0.5 / float64(dim)
	for _, p := range cx.Parameters() {
		p.InitUniform(rng, bound)
	}
	for i := 0; i < ne; i++ {
		cx.normalizeEntity(int64(i))
	}
	return cx, nil
}

// RequireLabels reports that ComplEx trains on collated +1/-1 labels
func RequireLabels() bool { return true }

// normalizeEntity normalizes an entity embedding to unit length
func (cx *ComplEx) normalizeEntity(id int64) {
	re, im := cx.entityRe.Row(id), cx.entityIm.Row(id)
	norm := math.Sqrt(floats.Dot(re, re) + floats.Dot(im, im))
	if norm > 0 {
		floats.Scale(1/norm, re)
		floats.Scale(1/norm, im)
	}
}

func (cx *ComplEx) embed(p, q *nn.Parameter, id int64) []complex128 {
	re, im := p.Row(id), q.Row(id)
	out := make([]complex128, cx.dim)
	for d := range out {
		out[d] = complex(re[d], im[d])
	}
	return out
}

// score computes the ComplEx score for a triple (h, r, t)
// Score = Re(<h, r, conj(t)>) = Re(Σ h_i * r_i * conj(t_i))
func (cx *ComplEx) score(t knowledge.Triple) float64 {
	h := cx.embed(cx.entityRe, cx.entityIm, t.Head)
	r := cx.embed(cx.relationRe, cx.relationIm, t.Relation)
	tl := cx.embed(cx.entityRe, cx.entityIm, t.Tail)

	var sum complex128
	for d := 0; d < cx.dim; d++ {
		// Trilinear product: h * r * conj(t)
		sum += h[d] * r[d] * cmplxConj(tl[d])
	}
	return real(sum)
}

// accumulate adds scale * d(score)/d(params) of t into grads.
// For s = Re(x * c) the gradient is (Re c, -Im c) on (Re x, Im x), with
// ∂score/∂h = r * conj(t), ∂score/∂r = h * conj(t), ∂score/∂t = conj(h * r)
func (cx *ComplEx) accumulate(grads *nn.Gradients, t knowledge.Triple, scale float64) {
	h := cx.embed(cx.entityRe, cx.entityIm, t.Head)
	r := cx.embed(cx.relationRe, cx.relationIm, t.Relation)
	tl := cx.embed(cx.entityRe, cx.entityIm, t.Tail)

	hRe, hIm := grads.Row(cx.entityRe, t.Head), grads.Row(cx.entityIm, t.Head)
	rRe, rIm := grads.Row(cx.relationRe, t.Relation), grads.Row(cx.relationIm, t.Relation)
	tRe, tIm := grads.Row(cx.entityRe, t.Tail), grads.Row(cx.entityIm, t.Tail)
	for d := 0; d < cx.dim; d++ {
		gradH := r[d] * cmplxConj(tl[d])
		gradR := h[d] * cmplxConj(tl[d])
		gradT := cmplxConj(h[d] * r[d])

		hRe[d] += scale * real(gradH)
		hIm[d] -= scale * imag(gradH)
		rRe[d] += scale * real(gradR)
		rIm[d] -= scale * imag(gradR)
		tRe[d] += scale * real(gradT)
		tIm[d] -= scale * imag(gradT)
	}
}

func (cx *ComplEx) sqnorm(t knowledge.Triple) float64 {
	sum := 0.0
	for _, row := range [][]float64{
		cx.entityRe.Row(t.Head), cx.entityIm.Row(t.Head),
		cx.relationRe.Row(t.Relation), cx.relationIm.Row(t.Relation),
		cx.entityRe.Row(t.Tail), cx.entityIm.Row(t.Tail),
	} {
		sum += floats.Dot(row, row)
	}
	return sum
}

func (cx *ComplEx) regularize(grads *nn.Gradients, t knowledge.Triple) {
	for _, pair := range []struct {
		p  *nn.Parameter
		id int64
	}{
		{cx.entityRe, t.Head}, {cx.entityIm, t.Head},
		{cx.relationRe, t.Relation}, {cx.relationIm, t.Relation},
		{cx.entityRe, t.Tail}, {cx.entityIm, t.Tail},
	} {
		floats.AddScaled(grads.Row(pair.p, pair.id), 2*cx.lambda, pair.p.Row(pair.id))
	}
}

// Forward computes the logistic loss log(1 + exp(-y * score)) plus the L2
// penalty for every positive and negative row. Rows without collated labels
// count as +1 for positives and -1 for negatives.
func (cx *ComplEx) Forward(positive, negative data.Tensor) (*nn.Loss, error) {
	type row struct {
		triple knowledge.Triple
		dscore float64
	}
	n := positive.Len() + negative.Len()
	values := make([]float64, 0, n)
	rows := make([]row, 0, n)

	add := func(batch data.Tensor, fallback float64) error {
		for i := 0; i < batch.Len(); i++ {
			t := batch.Triple(i)
			y := batch.Label(i, fallback)
			if y != 1 && y != -1 {
				return errors.Errorf("complex expects +1/-1 labels, got %v", y)
			}
			s := cx.score(t)
			values = append(values, softplus(-y*s)+cx.lambda*cx.sqnorm(t))
			rows = append(rows, row{t, -y * sigmoid(-y*s)})
		}
		return nil
	}
	if err := add(positive, 1); err != nil {
		return nil, err
	}
	if err := add(negative, -1); err != nil {
		return nil, err
	}

	return nn.NewLoss(values, func(grads *nn.Gradients) {
		for _, r := range rows {
			cx.accumulate(grads, r.triple, r.dscore)
			if cx.lambda != 0 {
				cx.regularize(grads, r.triple)
			}
		}
	}), nil
}

// Score returns Re(<h, r, conj(t)>) for every row
func (cx *ComplEx) Score(batch data.Tensor) ([]float64, error) {
	out := make([]float64, batch.Len())
	for i := range out {
		s := cx.score(batch.Triple(i))
		if math.IsNaN(s) {
			return nil, errors.Errorf("complex produced NaN for row %d", i)
		}
		out[i] = s
	}
	return out, nil
}

func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// cmplxConj returns the complex conjugate
func cmplxConj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}
