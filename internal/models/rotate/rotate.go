package rotate

import (
	"math"
	"math/rand"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/data"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/cnclabs/kgekit/pkg/nn"
	"github.com/pkg/errors"
)

// Name is the registry name of the model
const Name = "rotate"

// RotatE implements the RotatE algorithm using complex-valued embeddings
// RotatE models relations as rotations in complex space: h ∘ r ≈ t
// where ∘ denotes element-wise complex multiplication (Hadamard product).
// Relations are stored as phases so every r_i stays on the unit circle.
type RotatE struct {
	nn.Base

	dim int // Complex dimension (each complex number = 2 real dimensions)

	entityRe, entityIm *nn.Parameter
	relationPhase      *nn.Parameter

	margin          float64 // Margin for ranking loss
	adversarialTemp float64 // Temperature for self-adversarial negative sampling, 0 disables it
}

// New creates a RotatE model sized for source
func New(source *knowledge.TripleSource, cfg config.Config) (*RotatE, error) {
	if source.NumEntities() == 0 || source.NumRelations() == 0 {
		return nil, errors.New("rotate needs at least one entity and one relation")
	}

	dim := cfg.EmbeddingSize
	if dim%2 != 0 {
		dim++ // Ensure even dimension for complex embeddings
	}
	dim /= 2

	ne, nr := int(source.NumEntities()), int(source.NumRelations())
	re := &RotatE{
		dim:             dim,
		entityRe:        nn.NewParameter("entity_re", ne, dim),
		entityIm:        nn.NewParameter("entity_im", ne, dim),
		relationPhase:   nn.NewParameter("relation_phase", nr, dim),
		margin:          cfg.Margin,
		adversarialTemp: cfg.AdversarialTemperature,
	}
	re.Register(re.entityRe, re.entityIm, re.relationPhase)

	rng := rand.New(rand.NewSource(cfg.Seed))
	for i := 0; i < ne; i++ {
		reRow, imRow := re.entityRe.Row(int64(i)), re.entityIm.Row(int64(i))
		for d := 0; d < dim; d++ {
			// Random complex number with uniform phase
			phase := rng.Float64() * 2.0 * math.Pi
			magnitude := (rng.Float64()*0.5 + 0.5) / float64(dim)
			reRow[d] = magnitude * math.Cos(phase)
			imRow[d] = magnitude * math.Sin(phase)
		}
	}
	for i := range re.relationPhase.Value {
		re.relationPhase.Value[i] = rng.Float64() * 2.0 * math.Pi
	}
	return re, nil
}

// residual returns the real and imaginary parts of h ∘ r - t
func (re *RotatE) residual(t knowledge.Triple) (a, b []float64) {
	hr, hi := re.entityRe.Row(t.Head), re.entityIm.Row(t.Head)
	tr, ti := re.entityRe.Row(t.Tail), re.entityIm.Row(t.Tail)
	phase := re.relationPhase.Row(t.Relation)

	a = make([]float64, re.dim)
	b = make([]float64, re.dim)
	for d := 0; d < re.dim; d++ {
		s, c := math.Sincos(phase[d])
		a[d] = hr[d]*c - hi[d]*s - tr[d]
		b[d] = hr[d]*s + hi[d]*c - ti[d]
	}
	return a, b
}

// distance computes ||h ∘ r - t||
// Lower distance = better fit
func distance(a, b []float64) float64 {
	sum := 0.0
	for d := range a {
		sum += a[d]*a[d] + b[d]*b[d]
	}
	return math.Sqrt(sum)
}

// accumulate adds scale * d(distance)/d(params) of t into grads
func (re *RotatE) accumulate(grads *nn.Gradients, t knowledge.Triple, a, b []float64, dist, scale float64) {
	if dist < 1e-12 {
		return
	}
	k := scale / dist

	hr, hi := re.entityRe.Row(t.Head), re.entityIm.Row(t.Head)
	phase := re.relationPhase.Row(t.Relation)
	ghr, ghi := grads.Row(re.entityRe, t.Head), grads.Row(re.entityIm, t.Head)
	gtr, gti := grads.Row(re.entityRe, t.Tail), grads.Row(re.entityIm, t.Tail)
	gp := grads.Row(re.relationPhase, t.Relation)
	for d := 0; d < re.dim; d++ {
		s, c := math.Sincos(phase[d])
		ghr[d] += k * (a[d]*c + b[d]*s)
		ghi[d] += k * (b[d]*c - a[d]*s)
		gtr[d] -= k * a[d]
		gti[d] -= k * b[d]
		gp[d] += k * (a[d]*(-hr[d]*s-hi[d]*c) + b[d]*(hr[d]*c-hi[d]*s))
	}
}

type side struct {
	triple knowledge.Triple
	a, b   []float64
	dist   float64
}

func (re *RotatE) side(t knowledge.Triple) side {
	a, b := re.residual(t)
	return side{t, a, b, distance(a, b)}
}

// Forward computes, for every positive triple, the margin-based ranking loss
// sum_j w_j * max(0, margin + d(pos) - d(neg_j)). With a positive adversarial
// temperature w_j is the softmax of -temp * d(neg_j) over the negatives of the
// triple, held constant in the backward pass; otherwise w_j = 1.
func (re *RotatE) Forward(positive, negative data.Tensor) (*nn.Loss, error) {
	n := positive.Len()
	if n == 0 {
		return nn.NewLoss(nil, nil), nil
	}
	if negative.Len() == 0 || negative.Len()%n != 0 {
		return nil, errors.Errorf("rotate needs a multiple of %d negatives, got %d", n, negative.Len())
	}
	k := negative.Len() / n

	type active struct {
		pos, neg side
		weight   float64
	}
	values := make([]float64, n)
	var pairs []active
	for i := 0; i < n; i++ {
		pos := re.side(positive.Triple(i))
		negs := make([]side, k)
		for j := range negs {
			negs[j] = re.side(negative.Triple(i*k + j))
		}

		weights := re.weights(negs)
		for j, neg := range negs {
			loss := re.margin + pos.dist - neg.dist
			if loss <= 0 {
				continue
			}
			values[i] += weights[j] * loss
			pairs = append(pairs, active{pos, neg, weights[j]})
		}
	}

	return nn.NewLoss(values, func(grads *nn.Gradients) {
		for _, p := range pairs {
			re.accumulate(grads, p.pos.triple, p.pos.a, p.pos.b, p.pos.dist, p.weight)
			re.accumulate(grads, p.neg.triple, p.neg.a, p.neg.b, p.neg.dist, -p.weight)
		}
	}), nil
}

func (re *RotatE) weights(negs []side) []float64 {
	w := make([]float64, len(negs))
	if re.adversarialTemp <= 0 {
		for j := range w {
			w[j] = 1
		}
		return w
	}

	// softmax over -temp * distance, shifted by the smallest distance
	best := math.Inf(1)
	for _, s := range negs {
		best = math.Min(best, s.dist)
	}
	sum := 0.0
	for j, s := range negs {
		w[j] = math.Exp(-re.adversarialTemp * (s.dist - best))
		sum += w[j]
	}
	for j := range w {
		w[j] /= sum
	}
	return w
}

// Score returns -||h ∘ r - t|| for every row
func (re *RotatE) Score(batch data.Tensor) ([]float64, error) {
	out := make([]float64, batch.Len())
	for i := range out {
		d := distance(re.residual(batch.Triple(i)))
		if math.IsNaN(d) {
			return nil, errors.Errorf("rotate produced NaN for row %d", i)
		}
		out[i] = -d
	}
	return out, nil
}
