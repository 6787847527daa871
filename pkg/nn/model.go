package nn

import (
	"github.com/cnclabs/kgekit/pkg/data"
)

// Model is the capability contract the training loop and the evaluation
// engine consume.
type Model interface {
	// Forward computes the per-triple training loss of a batch and its negatives
	Forward(positive, negative data.Tensor) (*Loss, error)
	// Score returns one plausibility score per row; higher is more plausible
	Score(batch data.Tensor) ([]float64, error)

	Parameters() []*Parameter
	Train()
	Eval()
	Training() bool

	StateDict() StateDict
	LoadStateDict(sd StateDict) error
}

// Constrainer is implemented by models that project their parameters back
// onto a constraint set after every optimizer step
type Constrainer interface {
	Constrain()
}

// Loss holds per-triple loss values and the closure that backpropagates their sum
type Loss struct {
	Values   []float64
	backward func(g *Gradients)
}

// NewLoss creates a loss whose backward pass accumulates d(sum(values)) into g
func NewLoss(values []float64, backward func(g *Gradients)) *Loss {
	return &Loss{Values: values, backward: backward}
}

// Sum reduces the loss vector to a scalar
func (l *Loss) Sum() float64 {
	s := 0.0
	for _, v := range l.Values {
		s += v
	}
	return s
}

// BackwardInto accumulates the gradient of Sum into g
func (l *Loss) BackwardInto(g *Gradients) {
	if l.backward != nil {
		l.backward(g)
	}
}

// Backward accumulates the gradient of Sum into the parameters' Grad buffers
func (l *Loss) Backward() {
	g := NewGradients()
	l.BackwardInto(g)
	g.Apply()
}

// Base implements the bookkeeping part of Model; concrete models embed it
type Base struct {
	params   []*Parameter
	training bool
}

// Register adds parameters in a stable order
func (b *Base) Register(params ...*Parameter) {
	b.params = append(b.params, params...)
}

// Parameters returns the registered parameters
func (b *Base) Parameters() []*Parameter {
	return b.params
}

// Train switches to training mode
func (b *Base) Train() {
	b.training = true
}

// Eval switches to inference mode
func (b *Base) Eval() {
	b.training = false
}

// Training reports the current mode
func (b *Base) Training() bool {
	return b.training
}

// StateDict snapshots the registered parameters
func (b *Base) StateDict() StateDict {
	return Snapshot(b.params)
}

// LoadStateDict restores the registered parameters
func (b *Base) LoadStateDict(sd StateDict) error {
	return Restore(b.params, sd)
}
