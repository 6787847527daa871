package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"github.com/cnclabs/kgekit/internal/models"
	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/drawer"
	"github.com/cnclabs/kgekit/pkg/estimate"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/cnclabs/kgekit/pkg/logging"
	"github.com/cnclabs/kgekit/pkg/stats"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type commonArgs struct {
	Config   string `arg:"-c,--config" help:"YAML run configuration"`
	Data     string `arg:"-d,--data" help:"directory holding train.txt, valid.txt and test.txt"`
	Name     string `arg:"--name" help:"run name, used for checkpoint, log and plot directories"`
	Model    string `arg:"--model" help:"transe, distmult, rotate or complex"`
	Resume   string `arg:"--resume" help:"checkpoint path, or \"latest\""`
	Seed     int64  `arg:"--seed" help:"random seed"`
	Workers  int    `arg:"--workers" help:"evaluation workers"`
	LogLevel string `arg:"--log-level" help:"debug, info, warn or error"`
}

type trainArgs struct {
	commonArgs
	Epoches       int     `arg:"--epoches" help:"number of epochs to run"`
	BatchSize     int     `arg:"--batch-size" help:"training batch size"`
	Optimizer     string  `arg:"--optimizer" help:"sgd, adagrad, adadelta or adam"`
	Alpha         float64 `arg:"--alpha" help:"learning rate"`
	EmbeddingSize int     `arg:"--dimensions" help:"embedding dimension"`
	Strategy      string  `arg:"--strategy" help:"single or data-parallel"`
	Devices       int     `arg:"--devices" help:"shards used by the data-parallel strategy"`
	NoValidation  bool    `arg:"--no-validation" help:"skip validation after each epoch"`
	Plot          bool    `arg:"--plot" help:"dump logging data and render plots at the end"`
	Progress      bool    `arg:"--progress" help:"show a progress bar during evaluation"`
	Export        string  `arg:"--export" help:"write the trained embeddings into this directory"`
}

type testArgs struct {
	commonArgs
	Progress bool `arg:"--progress" help:"show a progress bar during evaluation"`
}

type interactiveArgs struct {
	commonArgs
	TopK    int    `arg:"--top-k" help:"number of candidates shown per query"`
	History string `arg:"--history" help:"readline history file"`
}

type cliArgs struct {
	Train       *trainArgs       `arg:"subcommand:train" help:"train, validate and checkpoint a model"`
	Test        *testArgs        `arg:"subcommand:test" help:"evaluate a checkpoint on the test split"`
	Interactive *interactiveArgs `arg:"subcommand:interactive" help:"answer (head, relation, tail) queries with a checkpoint"`
}

func (cliArgs) Description() string {
	return "kge trains knowledge graph embeddings (h + r ≈ t and friends) and evaluates them by link prediction.\n" +
		"Input format (triples): head relation tail [weight]\n"
}

func (cliArgs) Epilogue() string {
	return "Examples:\n" +
		"  kge train -d data/fb15k --name fb --model transe --epoches 100 --plot\n" +
		"  kge test -d data/fb15k --name fb --resume latest\n" +
		"  kge interactive -d data/fb15k --name fb --resume latest"
}

func main() {
	var args cliArgs
	p := arg.MustParse(&args)
	if p.Subcommand() == nil {
		p.Fail("missing command: train, test or interactive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case args.Train != nil:
		err = runTrain(ctx, args.Train)
	case args.Test != nil:
		err = runTest(ctx, args.Test)
	case args.Interactive != nil:
		err = runInteractive(ctx, args.Interactive)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// run is what every command needs once flags are applied
type run struct {
	cfg     config.Config
	fs      afero.Fs
	logger  *zap.Logger
	source  *knowledge.TripleSource
	factory models.Factory
}

func setup(common commonArgs, override func(*config.Config)) (*run, error) {
	fs := afero.NewOsFs()
	cfg := config.Default()
	if common.Config != "" {
		var err error
		if cfg, err = config.Load(fs, common.Config); err != nil {
			return nil, err
		}
	}
	setString(&cfg.DataDir, common.Data)
	setString(&cfg.Name, common.Name)
	setString(&cfg.Model, common.Model)
	setString(&cfg.Resume, common.Resume)
	setString(&cfg.LogLevel, common.LogLevel)
	if common.Seed != 0 {
		cfg.Seed = common.Seed
	}
	if common.Workers != 0 {
		cfg.Workers = common.Workers
	}
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	factory, err := models.Lookup(cfg.Model)
	if err != nil {
		return nil, err
	}

	source, err := knowledge.LoadTripleSource(fs, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded dataset",
		zap.String("dir", cfg.DataDir),
		zap.Int64("entities", source.NumEntities()),
		zap.Int64("relations", source.NumRelations()),
		zap.Int("train", len(source.Train)),
		zap.Int("valid", len(source.Valid)),
		zap.Int("test", len(source.Test)))

	return &run{cfg: cfg, fs: fs, logger: logger, source: source, factory: factory}, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func runTrain(ctx context.Context, a *trainArgs) error {
	r, err := setup(a.commonArgs, func(cfg *config.Config) {
		if a.Epoches != 0 {
			cfg.Epoches = a.Epoches
		}
		if a.BatchSize != 0 {
			cfg.BatchSize = a.BatchSize
		}
		if a.Alpha != 0 {
			cfg.Alpha = a.Alpha
		}
		if a.EmbeddingSize != 0 {
			cfg.EmbeddingSize = a.EmbeddingSize
		}
		if a.Devices != 0 {
			cfg.Devices = a.Devices
		}
		setString(&cfg.Optimizer, a.Optimizer)
		setString(&cfg.Strategy, a.Strategy)
		cfg.Progress = cfg.Progress || a.Progress
	})
	if err != nil {
		return err
	}
	defer r.logger.Sync()

	opts := []estimate.Option{estimate.WithLogger(r.logger), estimate.WithFs(r.fs)}
	if a.Plot {
		opts = append(opts, estimate.WithDrawer(drawer.New()))
	}

	model, err := estimate.New(r.cfg, opts...).TrainAndValidate(ctx, r.source, r.factory, !a.NoValidation)
	if err != nil {
		return err
	}

	if a.Export != "" {
		written, err := models.SaveEmbeddings(r.fs, a.Export, model, r.source)
		if err != nil {
			return errors.Wrapf(err, "exporting embeddings")
		}
		r.logger.Info("saved embeddings", zap.Strings("paths", written))
	}
	return nil
}

func runTest(ctx context.Context, a *testArgs) error {
	r, err := setup(a.commonArgs, func(cfg *config.Config) {
		cfg.Progress = cfg.Progress || a.Progress
	})
	if err != nil {
		return err
	}
	defer r.logger.Sync()

	result, err := estimate.New(r.cfg, estimate.WithLogger(r.logger), estimate.WithFs(r.fs)).
		Test(ctx, r.source, r.factory)
	if err != nil {
		return err
	}
	fmt.Println(stats.Compute(result, r.cfg.Hits).Overall)
	return nil
}

func runInteractive(ctx context.Context, a *interactiveArgs) error {
	r, err := setup(a.commonArgs, func(cfg *config.Config) {
		if a.TopK != 0 {
			cfg.TopK = a.TopK
		}
	})
	if err != nil {
		return err
	}
	defer r.logger.Sync()

	history := a.History
	if history == "" {
		history = filepath.Join(os.TempDir(), "kge_history")
	}
	queries, err := newPromptSource(history)
	if err != nil {
		return err
	}
	defer queries.Close()

	fmt.Println("Type a query as: head relation tail, with ? for the element to predict.")
	fmt.Println("Example: Barack_Obama born_in ?")
	return estimate.New(r.cfg, estimate.WithLogger(r.logger), estimate.WithFs(r.fs), estimate.WithPool(nil)).
		InteractivePrediction(ctx, r.source, r.factory, queries, printPrediction)
}

func printPrediction(p estimate.Prediction) {
	if p.Err != nil {
		fmt.Printf("Error: %v\n", p.Err)
		return
	}
	fmt.Printf("Predicting %s among %d candidates:\n", p.Type, p.Candidates)
	for _, c := range p.Top {
		fmt.Printf("  %3d. %-30s %.6f\n", c.Rank, c.Name, c.Score)
	}
}
