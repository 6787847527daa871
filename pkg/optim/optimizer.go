package optim

import (
	"math"

	"github.com/cnclabs/kgekit/pkg/nn"
	"github.com/pkg/errors"
)

// Optimizer updates parameters from their gradients
type Optimizer interface {
	Kind() Kind
	// Step applies one update using the current gradients
	Step()
	// ZeroGrad clears the gradients of every parameter
	ZeroGrad()
	StateDict() State
	LoadStateDict(st State) error
}

// State is the serialisable optimizer state: the step counter and the
// per-parameter buffers, keyed by parameter name then buffer name.
type State struct {
	Kind    string
	Step    int64
	Buffers map[string]map[string][]float64
}

// New builds the optimizer of kind over params
func New(kind Kind, hp Hyperparams, params []*nn.Parameter) (Optimizer, error) {
	p := ParamsFor(kind, hp)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return NewWithParams(p, params)
}

// NewWithParams builds the optimizer described by a hyperparameter record
func NewWithParams(p Params, params []*nn.Parameter) (Optimizer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b := base{kind: p.Kind(), params: params, buffers: make(map[string]map[string][]float64)}
	switch p := p.(type) {
	case SGDParams:
		return &sgd{base: b, p: p}, nil
	case AdagradParams:
		return &adagrad{base: b, p: p}, nil
	case AdadeltaParams:
		return &adadelta{base: b, p: p}, nil
	case AdamParams:
		return &adam{base: b, p: p}, nil
	}
	return nil, errors.Errorf("unsupported optimizer params %T", p)
}

type base struct {
	kind    Kind
	params  []*nn.Parameter
	step    int64
	buffers map[string]map[string][]float64
}

func (b *base) Kind() Kind {
	return b.kind
}

func (b *base) ZeroGrad() {
	for _, p := range b.params {
		p.ZeroGrad()
	}
}

// buffer returns the named state buffer of p, zero-initialised on first use
func (b *base) buffer(p *nn.Parameter, name string) []float64 {
	bufs, ok := b.buffers[p.Name]
	if !ok {
		bufs = make(map[string][]float64)
		b.buffers[p.Name] = bufs
	}
	buf, ok := bufs[name]
	if !ok {
		buf = make([]float64, len(p.Value))
		bufs[name] = buf
	}
	return buf
}

func (b *base) StateDict() State {
	st := State{Kind: b.kind.String(), Step: b.step, Buffers: make(map[string]map[string][]float64, len(b.buffers))}
	for pname, bufs := range b.buffers {
		cp := make(map[string][]float64, len(bufs))
		for name, buf := range bufs {
			cp[name] = append([]float64(nil), buf...)
		}
		st.Buffers[pname] = cp
	}
	return st
}

func (b *base) LoadStateDict(st State) error {
	if st.Kind != "" && st.Kind != b.kind.String() {
		return errors.Errorf("optimizer state is for %s, optimizer is %s", st.Kind, b.kind)
	}
	sizes := make(map[string]int, len(b.params))
	for _, p := range b.params {
		sizes[p.Name] = len(p.Value)
	}

	buffers := make(map[string]map[string][]float64, len(st.Buffers))
	for pname, bufs := range st.Buffers {
		size, ok := sizes[pname]
		if !ok {
			return errors.Errorf("optimizer state has buffers for unknown parameter %s", pname)
		}
		cp := make(map[string][]float64, len(bufs))
		for name, buf := range bufs {
			if len(buf) != size {
				return errors.Errorf("optimizer buffer %s/%s has %d values, parameter has %d", pname, name, len(buf), size)
			}
			cp[name] = append([]float64(nil), buf...)
		}
		buffers[pname] = cp
	}
	b.step = st.Step
	b.buffers = buffers
	return nil
}

type sgd struct {
	base
	p SGDParams
}

func (o *sgd) Step() {
	o.step++
	for _, p := range o.params {
		for i, g := range p.Grad {
			p.Value[i] -= o.p.LearningRate * g
		}
	}
}

type adagrad struct {
	base
	p AdagradParams
}

func (o *adagrad) Step() {
	o.step++
	clr := o.p.LearningRate / (1 + float64(o.step-1)*o.p.LRDecay)
	for _, p := range o.params {
		sum := o.buffer(p, "sum")
		for i, g := range p.Grad {
			if o.p.WeightDecay != 0 {
				g += o.p.WeightDecay * p.Value[i]
			}
			sum[i] += g * g
			p.Value[i] -= clr * g / (math.Sqrt(sum[i]) + o.p.Eps)
		}
	}
}

type adadelta struct {
	base
	p AdadeltaParams
}

func (o *adadelta) Step() {
	o.step++
	rho := o.p.Rho
	for _, p := range o.params {
		sq := o.buffer(p, "square_avg")
		acc := o.buffer(p, "acc_delta")
		for i, g := range p.Grad {
			sq[i] = rho*sq[i] + (1-rho)*g*g
			delta := math.Sqrt(acc[i]+o.p.Eps) / math.Sqrt(sq[i]+o.p.Eps) * g
			acc[i] = rho*acc[i] + (1-rho)*delta*delta
			p.Value[i] -= o.p.LearningRate * delta
		}
	}
}

type adam struct {
	base
	p AdamParams
}

func (o *adam) Step() {
	o.step++
	b1, b2 := o.p.Beta1, o.p.Beta2
	bc1 := 1 - math.Pow(b1, float64(o.step))
	bc2 := 1 - math.Pow(b2, float64(o.step))
	stepSize := o.p.LearningRate / bc1
	for _, p := range o.params {
		m := o.buffer(p, "exp_avg")
		v := o.buffer(p, "exp_avg_sq")
		for i, g := range p.Grad {
			m[i] = b1*m[i] + (1-b1)*g
			v[i] = b2*v[i] + (1-b2)*g*g
			denom := math.Sqrt(v[i])/math.Sqrt(bc2) + o.p.Eps
			p.Value[i] -= stepSize * m[i] / denom
		}
	}
}
