// Package optim implements the optimizers that update model parameters from
// their accumulated gradients. Each optimizer kind carries its own
// hyperparameter record; selecting one is a table lookup on Kind.
package optim

import (
	"fmt"
	"strings"

	"github.com/cnclabs/kgekit/pkg/config"
)

// Kind enumerates the supported optimizers
type Kind int

const (
	// SGD is plain gradient descent and the fallback for unknown names
	SGD Kind = iota
	// Adagrad is the adaptive-gradient optimizer
	Adagrad
	// Adadelta is the delta-adaptive optimizer
	Adadelta
	// Adam is the moment-adaptive optimizer
	Adam
)

var kindNames = map[string]Kind{
	"":                  SGD,
	"default":           SGD,
	"sgd":               SGD,
	"adagrad":           Adagrad,
	"adaptive-gradient": Adagrad,
	"adadelta":          Adadelta,
	"delta-adaptive":    Adadelta,
	"adam":              Adam,
	"moment-adaptive":   Adam,
}

func (k Kind) String() string {
	switch k {
	case SGD:
		return "sgd"
	case Adagrad:
		return "adagrad"
	case Adadelta:
		return "adadelta"
	case Adam:
		return "adam"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves an optimizer name. An unknown name resolves to SGD
// together with a *config.ConfigurationError so callers can warn about the
// fallback and carry on.
func ParseKind(name string) (Kind, error) {
	if k, ok := kindNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k, nil
	}
	return SGD, &config.ConfigurationError{
		Field:  "optimizer",
		Reason: fmt.Sprintf("unknown kind %q, falling back to %s", name, SGD),
	}
}

// Hyperparams are the optimizer settings a run configuration provides
type Hyperparams struct {
	LearningRate float64
	LRDecay      float64
	WeightDecay  float64
}

// HyperparamsFromConfig extracts the optimizer settings of cfg
func HyperparamsFromConfig(cfg config.Config) Hyperparams {
	return Hyperparams{
		LearningRate: cfg.Alpha,
		LRDecay:      cfg.LRDecay,
		WeightDecay:  cfg.WeightDecay,
	}
}

// Params is the per-kind hyperparameter record
type Params interface {
	Kind() Kind
	Validate() error
}

// SGDParams configures SGD
type SGDParams struct {
	LearningRate float64
}

// AdagradParams configures Adagrad. LRDecay and WeightDecay default to 0.
type AdagradParams struct {
	LearningRate float64
	LRDecay      float64
	WeightDecay  float64
	Eps          float64
}

// AdadeltaParams configures Adadelta
type AdadeltaParams struct {
	LearningRate float64
	Rho          float64
	Eps          float64
}

// AdamParams configures Adam
type AdamParams struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Eps          float64
}

// Kind implements Params
func (SGDParams) Kind() Kind { return SGD }

// Kind implements Params
func (AdagradParams) Kind() Kind { return Adagrad }

// Kind implements Params
func (AdadeltaParams) Kind() Kind { return Adadelta }

// Kind implements Params
func (AdamParams) Kind() Kind { return Adam }

// Validate implements Params
func (p SGDParams) Validate() error { return validateLearningRate(p.LearningRate) }

// Validate implements Params
func (p AdagradParams) Validate() error {
	if p.LRDecay < 0 || p.WeightDecay < 0 {
		return &config.ConfigurationError{Field: "lr_decay", Reason: "lr_decay and weight_decay must not be negative"}
	}
	return validateLearningRate(p.LearningRate)
}

// Validate implements Params
func (p AdadeltaParams) Validate() error { return validateLearningRate(p.LearningRate) }

// Validate implements Params
func (p AdamParams) Validate() error { return validateLearningRate(p.LearningRate) }

// the learning rate has no sane default, so a missing one fails setup
func validateLearningRate(lr float64) error {
	if lr <= 0 {
		return &config.ConfigurationError{Field: "alpha", Reason: fmt.Sprintf("learning rate must be positive, got %g", lr)}
	}
	return nil
}

// paramsByKind builds the record of every kind from the run hyperparameters,
// filling the documented defaults of the fields a run does not set.
var paramsByKind = map[Kind]func(Hyperparams) Params{
	SGD: func(hp Hyperparams) Params {
		return SGDParams{LearningRate: hp.LearningRate}
	},
	Adagrad: func(hp Hyperparams) Params {
		return AdagradParams{LearningRate: hp.LearningRate, LRDecay: hp.LRDecay, WeightDecay: hp.WeightDecay, Eps: 1e-10}
	},
	Adadelta: func(hp Hyperparams) Params {
		return AdadeltaParams{LearningRate: hp.LearningRate, Rho: 0.9, Eps: 1e-6}
	},
	Adam: func(hp Hyperparams) Params {
		return AdamParams{LearningRate: hp.LearningRate, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
	},
}

// ParamsFor returns the hyperparameter record of kind
func ParamsFor(kind Kind, hp Hyperparams) Params {
	build, ok := paramsByKind[kind]
	if !ok {
		build = paramsByKind[SGD]
	}
	return build(hp)
}
