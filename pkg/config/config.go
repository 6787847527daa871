// Package config handles run configuration loading.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Execution strategies for the model.
const (
	StrategySingle       = "single"
	StrategyDataParallel = "data-parallel"
)

// Negative sampling modes for choosing which entity slot to corrupt.
const (
	// SamplingUniform corrupts head or tail with equal probability
	SamplingUniform = "unif"
	// SamplingBernoulli corrupts the head with probability tph/(tph+hpt) of the relation
	SamplingBernoulli = "bern"
)

// ResumeLatest asks the checkpoint store for the newest checkpoint of the run.
const ResumeLatest = "latest"

// Config is the immutable run configuration. It is created once at startup and
// passed by value to every component.
type Config struct {
	Name    string `yaml:"name"`
	DataDir string `yaml:"data_dir"`
	Model   string `yaml:"model"`

	// Optimizer and its hyperparameters
	Optimizer   string  `yaml:"optimizer"`
	Alpha       float64 `yaml:"alpha"`
	LRDecay     float64 `yaml:"lr_decay"`
	WeightDecay float64 `yaml:"weight_decay"`

	// Training schedule and negative sampling
	Epoches          int     `yaml:"epoches"`
	BatchSize        int     `yaml:"batch_size"`
	NegativeEntity   int     `yaml:"negative_entity"`
	NegativeRelation int     `yaml:"negative_relation"`
	Sampling         string  `yaml:"sampling"`
	NegativePower    float64 `yaml:"negative_power"`
	Seed             int64   `yaml:"seed"`
	Prefetch         int     `yaml:"prefetch"`

	// Model hyperparameters
	EmbeddingSize int     `yaml:"embedding_size"`
	Margin        float64 `yaml:"margin"`
	Norm          int     `yaml:"norm"`
	Lambda        float64 `yaml:"lambda"`
	// Temperature of self-adversarial negative weighting; 0 weighs negatives equally
	AdversarialTemperature float64 `yaml:"adversarial_temperature"`

	// Execution strategy: "single" or "data-parallel" across Devices shards
	Strategy string `yaml:"strategy"`
	Devices  int    `yaml:"devices"`

	// Evaluation
	Workers         int   `yaml:"workers"`
	TopK            int   `yaml:"top_k"`
	PredictRelation bool  `yaml:"predict_relation"`
	Hits            []int `yaml:"hits"`
	Progress        bool  `yaml:"progress"`

	// Output
	Resume         string `yaml:"resume"`
	ModelStatesDir string `yaml:"model_states_dir"`
	LogDir         string `yaml:"log_dir"`
	PlotDir        string `yaml:"plot_dir"`
	LogLevel       string `yaml:"log_level"`
}

// Default returns the configuration used when no file or flag overrides a field.
func Default() Config {
	return Config{
		Name:             "default",
		Model:            "transe",
		Optimizer:        "adam",
		Alpha:            0.01,
		Epoches:          10,
		BatchSize:        128,
		NegativeEntity:   1,
		NegativeRelation: 0,
		Sampling:         SamplingUniform,
		Seed:             1,
		Prefetch:         2,
		EmbeddingSize:    50,
		Margin:           1.0,
		Norm:             2,
		Lambda:           0.0,
		Strategy:         StrategySingle,
		Devices:          1,
		Workers:          4,
		TopK:             10,
		Hits:             []int{1, 3, 10},
		ModelStatesDir:   "model_states",
		LogDir:           "logs",
		PlotDir:          "plots",
		LogLevel:         "info",
	}
}

// Load reads a YAML file from fs on top of Default.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config")
	}
	return cfg, nil
}

// NegativeRatio is the number of negatives generated per positive triple.
func (c Config) NegativeRatio() int {
	return c.NegativeEntity + c.NegativeRelation
}

// CheckpointDir is the per-run directory holding the numbered checkpoints.
func (c Config) CheckpointDir() string {
	return filepath.Join(c.ModelStatesDir, c.Name)
}

// Validate reports the first field with no usable value. It does not check the
// optimizer name: an unknown optimizer falls back to the default one.
func (c Config) Validate() error {
	switch {
	case c.Name == "":
		return &ConfigurationError{Field: "name", Reason: "must not be empty"}
	case c.Epoches < 1:
		return &ConfigurationError{Field: "epoches", Reason: fmt.Sprintf("must be >= 1, got %d", c.Epoches)}
	case c.BatchSize < 1:
		return &ConfigurationError{Field: "batch_size", Reason: fmt.Sprintf("must be >= 1, got %d", c.BatchSize)}
	case c.NegativeEntity < 0 || c.NegativeRelation < 0:
		return &ConfigurationError{Field: "negative_entity", Reason: "negative counts must not be negative"}
	case c.NegativeRatio() < 1:
		return &ConfigurationError{Field: "negative_entity", Reason: "at least one negative per positive is required"}
	case c.Sampling != SamplingUniform && c.Sampling != SamplingBernoulli:
		return &ConfigurationError{Field: "sampling", Reason: fmt.Sprintf("unknown mode %q", c.Sampling)}
	case c.EmbeddingSize < 1:
		return &ConfigurationError{Field: "embedding_size", Reason: "must be positive"}
	case c.Strategy != StrategySingle && c.Strategy != StrategyDataParallel:
		return &ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", c.Strategy)}
	case c.Devices < 1:
		return &ConfigurationError{Field: "devices", Reason: "must be positive"}
	case c.TopK < 1:
		return &ConfigurationError{Field: "top_k", Reason: "must be positive"}
	}
	return nil
}

// ConfigurationError reports an unusable configuration value.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}
