package optim

import (
	"math"
	"testing"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func param(values ...float64) *nn.Parameter {
	p := nn.NewParameter("w", 1, len(values))
	copy(p.Value, values)
	return p
}

func setGrad(p *nn.Parameter, grads ...float64) {
	copy(p.Grad, grads)
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{
		"adagrad":           Adagrad,
		"adaptive-gradient": Adagrad,
		"Delta-Adaptive":    Adadelta,
		"moment-adaptive":   Adam,
		"":                  SGD,
		"default":           SGD,
	} {
		k, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, k, name)
	}

	k, err := ParseKind("rmsprop")
	assert.Equal(t, SGD, k)
	var cerr *config.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "optimizer", cerr.Field)
}

func TestDeltaAdaptiveNeedsOnlyLearningRate(t *testing.T) {
	kind, err := ParseKind("delta-adaptive")
	require.NoError(t, err)

	opt, err := New(kind, Hyperparams{LearningRate: 1}, []*nn.Parameter{param(0)})
	require.NoError(t, err)
	assert.Equal(t, Adadelta, opt.Kind())
}

func TestAdaptiveGradientDefaultsDecays(t *testing.T) {
	p := ParamsFor(Adagrad, Hyperparams{LearningRate: 0.1})
	require.NoError(t, p.Validate())
	assert.Equal(t, AdagradParams{LearningRate: 0.1, LRDecay: 0, WeightDecay: 0, Eps: 1e-10}, p)

	_, err := New(Adagrad, Hyperparams{LearningRate: 0.1}, []*nn.Parameter{param(0)})
	assert.NoError(t, err)
}

func TestMissingLearningRateFailsFast(t *testing.T) {
	for _, kind := range []Kind{SGD, Adagrad, Adadelta, Adam} {
		_, err := New(kind, Hyperparams{}, []*nn.Parameter{param(0)})
		var cerr *config.ConfigurationError
		require.ErrorAs(t, err, &cerr, kind.String())
		assert.Equal(t, "alpha", cerr.Field)
	}
}

func TestSGDStep(t *testing.T) {
	p := param(1, 2)
	opt, err := New(SGD, Hyperparams{LearningRate: 0.5}, []*nn.Parameter{p})
	require.NoError(t, err)

	setGrad(p, 2, -2)
	opt.Step()
	assert.Equal(t, []float64{0, 3}, p.Value)

	opt.ZeroGrad()
	assert.Equal(t, []float64{0, 0}, p.Grad)
}

func TestAdagradStep(t *testing.T) {
	p := param(0)
	opt, err := New(Adagrad, Hyperparams{LearningRate: 0.1, LRDecay: 1}, []*nn.Parameter{p})
	require.NoError(t, err)

	setGrad(p, 1)
	opt.Step()
	assert.InDelta(t, -0.1, p.Value[0], 1e-9)

	// second step: clr = 0.1/2, sum = 2
	opt.Step()
	assert.InDelta(t, -0.1-0.05/math.Sqrt(2), p.Value[0], 1e-9)
}

func TestAdagradWeightDecay(t *testing.T) {
	p := param(1)
	opt, err := New(Adagrad, Hyperparams{LearningRate: 0.1, WeightDecay: 1}, []*nn.Parameter{p})
	require.NoError(t, err)

	// zero gradient still moves the weight through the decay term
	opt.Step()
	assert.InDelta(t, 0.9, p.Value[0], 1e-9)
}

func TestAdamFirstStepIsSignTimesLearningRate(t *testing.T) {
	p := param(0, 0)
	opt, err := New(Adam, Hyperparams{LearningRate: 0.01}, []*nn.Parameter{p})
	require.NoError(t, err)

	setGrad(p, 3, -0.5)
	opt.Step()
	assert.InDelta(t, -0.01, p.Value[0], 1e-6)
	assert.InDelta(t, 0.01, p.Value[1], 1e-6)
}

func TestAdadeltaFirstStep(t *testing.T) {
	p := param(0)
	opt, err := New(Adadelta, Hyperparams{LearningRate: 1}, []*nn.Parameter{p})
	require.NoError(t, err)

	setGrad(p, 1)
	opt.Step()
	want := math.Sqrt(1e-6) / math.Sqrt(0.1+1e-6)
	assert.InDelta(t, -want, p.Value[0], 1e-12)
}

func TestStateDictResumesIdentically(t *testing.T) {
	for _, kind := range []Kind{SGD, Adagrad, Adadelta, Adam} {
		hp := Hyperparams{LearningRate: 0.1, LRDecay: 0.5}

		straight := param(1, -1)
		opt, err := New(kind, hp, []*nn.Parameter{straight})
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			setGrad(straight, 0.3, float64(i))
			opt.Step()
		}

		first := param(1, -1)
		opt1, err := New(kind, hp, []*nn.Parameter{first})
		require.NoError(t, err)
		setGrad(first, 0.3, 0)
		opt1.Step()
		st := opt1.StateDict()

		resumed := param(first.Value...)
		opt2, err := New(kind, hp, []*nn.Parameter{resumed})
		require.NoError(t, err)
		require.NoError(t, opt2.LoadStateDict(st))
		for i := 1; i < 3; i++ {
			setGrad(resumed, 0.3, float64(i))
			opt2.Step()
		}

		assert.InDeltaSlice(t, straight.Value, resumed.Value, 1e-12, kind.String())
	}
}

func TestLoadStateDictMismatch(t *testing.T) {
	opt, err := New(Adam, Hyperparams{LearningRate: 0.1}, []*nn.Parameter{param(0)})
	require.NoError(t, err)

	assert.Error(t, opt.LoadStateDict(State{Kind: "sgd"}))
	assert.Error(t, opt.LoadStateDict(State{Kind: "adam", Buffers: map[string]map[string][]float64{"other": {}}}))
	assert.Error(t, opt.LoadStateDict(State{Kind: "adam", Buffers: map[string]map[string][]float64{"w": {"exp_avg": {1, 2}}}}))
}
