// Package models registers the trainable knowledge graph embedding models.
package models

import (
	"sort"
	"strings"

	"github.com/cnclabs/kgekit/internal/models/cplx"
	"github.com/cnclabs/kgekit/internal/models/distmult"
	"github.com/cnclabs/kgekit/internal/models/rotate"
	"github.com/cnclabs/kgekit/internal/models/transe"
	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/cnclabs/kgekit/pkg/nn"
)

// Factory builds one kind of model
type Factory struct {
	Name   string
	Labels bool
	build  func(source *knowledge.TripleSource, cfg config.Config) (nn.Model, error)
}

// RequireLabels reports whether the model trains on collated +1/-1 labels
func (f Factory) RequireLabels() bool {
	return f.Labels
}

// New builds a fresh model sized for source
func (f Factory) New(source *knowledge.TripleSource, cfg config.Config) (nn.Model, error) {
	return f.build(source, cfg)
}

var registry = map[string]Factory{
	transe.Name: {
		Name: transe.Name,
		build: func(source *knowledge.TripleSource, cfg config.Config) (nn.Model, error) {
			return transe.New(source, cfg)
		},
	},
	distmult.Name: {
		Name: distmult.Name,
		build: func(source *knowledge.TripleSource, cfg config.Config) (nn.Model, error) {
			return distmult.New(source, cfg)
		},
	},
	rotate.Name: {
		Name: rotate.Name,
		build: func(source *knowledge.TripleSource, cfg config.Config) (nn.Model, error) {
			return rotate.New(source, cfg)
		},
	},
	cplx.Name: {
		Name:   cplx.Name,
		Labels: cplx.RequireLabels(),
		build: func(source *knowledge.TripleSource, cfg config.Config) (nn.Model, error) {
			return cplx.New(source, cfg)
		},
	},
}

// Lookup returns the factory registered under name
func Lookup(name string) (Factory, error) {
	f, ok := registry[strings.ToLower(name)]
	if !ok {
		return Factory{}, &config.ConfigurationError{
			Field:  "model",
			Reason: "unknown model " + name + ", expected one of " + strings.Join(Names(), ", "),
		}
	}
	return f, nil
}

// Names returns the registered model names, sorted
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
