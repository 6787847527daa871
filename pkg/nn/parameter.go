// Package nn defines the contract between the training loop and trainable
// models: dense parameters with gradients, losses that know how to
// backpropagate themselves, state dicts and execution strategies.
package nn

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Parameter is a dense row-major matrix of trainable weights and its gradient
type Parameter struct {
	Name  string
	Rows  int
	Cols  int
	Value []float64
	Grad  []float64
}

// NewParameter allocates a zero rows x cols parameter
func NewParameter(name string, rows, cols int) *Parameter {
	return &Parameter{
		Name:  name,
		Rows:  rows,
		Cols:  cols,
		Value: make([]float64, rows*cols),
		Grad:  make([]float64, rows*cols),
	}
}

// Row returns the weights of row i
func (p *Parameter) Row(i int64) []float64 {
	return p.Value[int(i)*p.Cols : (int(i)+1)*p.Cols]
}

// GradRow returns the gradient of row i
func (p *Parameter) GradRow(i int64) []float64 {
	return p.Grad[int(i)*p.Cols : (int(i)+1)*p.Cols]
}

// ZeroGrad clears the gradient
func (p *Parameter) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// InitUniform fills the weights with samples from U(-bound, bound)
func (p *Parameter) InitUniform(rng *rand.Rand, bound float64) {
	for i := range p.Value {
		p.Value[i] = (rng.Float64()*2 - 1) * bound
	}
}

// ParameterState is the serialisable snapshot of one parameter
type ParameterState struct {
	Rows   int
	Cols   int
	Values []float64
}

// StateDict maps parameter names to snapshots
type StateDict map[string]ParameterState

// Snapshot copies the current weights of params
func Snapshot(params []*Parameter) StateDict {
	sd := make(StateDict, len(params))
	for _, p := range params {
		values := make([]float64, len(p.Value))
		copy(values, p.Value)
		sd[p.Name] = ParameterState{Rows: p.Rows, Cols: p.Cols, Values: values}
	}
	return sd
}

// Restore copies a snapshot back into params. Every parameter must be present
// with a matching shape.
func Restore(params []*Parameter, sd StateDict) error {
	for _, p := range params {
		st, ok := sd[p.Name]
		if !ok {
			return errors.Errorf("state dict is missing parameter %s", p.Name)
		}
		if st.Rows != p.Rows || st.Cols != p.Cols || len(st.Values) != len(p.Value) {
			return errors.Errorf("parameter %s has shape %dx%d, state dict has %dx%d",
				p.Name, p.Rows, p.Cols, st.Rows, st.Cols)
		}
		copy(p.Value, st.Values)
	}
	return nil
}
