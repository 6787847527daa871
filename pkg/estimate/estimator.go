// Package estimate drives training, validation, testing and interactive
// prediction of knowledge graph embedding models.
package estimate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cnclabs/kgekit/pkg/checkpoint"
	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/data"
	"github.com/cnclabs/kgekit/pkg/drawer"
	"github.com/cnclabs/kgekit/pkg/evaluation"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/cnclabs/kgekit/pkg/nn"
	"github.com/cnclabs/kgekit/pkg/optim"
	"github.com/cnclabs/kgekit/pkg/stats"
	"github.com/cnclabs/kgekit/pkg/workerpool"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ModelFactory builds the trainable model of a run
type ModelFactory interface {
	// RequireLabels reports whether training batches must carry +1/-1 labels
	RequireLabels() bool
	New(source *knowledge.TripleSource, cfg config.Config) (nn.Model, error)
}

// Estimator owns the collaborators of a run: logger, checkpoint store,
// evaluation worker pool and stats reporter.
type Estimator struct {
	cfg      config.Config
	fs       afero.Fs
	logger   *zap.Logger
	store    *checkpoint.Store
	pool     *workerpool.Pool
	reporter *stats.Reporter
	drawer   *drawer.Drawer
}

// Option configures an Estimator
type Option func(*Estimator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Estimator) { e.logger = logger }
}

// WithFs sets the filesystem used for checkpoints, logging data and plots
func WithFs(fs afero.Fs) Option {
	return func(e *Estimator) { e.fs = fs }
}

// WithStore sets the checkpoint store
func WithStore(store *checkpoint.Store) Option {
	return func(e *Estimator) { e.store = store }
}

// WithPool sets the evaluation worker pool; nil evaluates sequentially
func WithPool(pool *workerpool.Pool) Option {
	return func(e *Estimator) { e.pool = pool }
}

// WithDrawer records losses and metrics as plots, dumped and rendered at the
// end of training
func WithDrawer(d *drawer.Drawer) Option {
	return func(e *Estimator) { e.drawer = d }
}

// WithReporter sets the stats reporter
func WithReporter(r *stats.Reporter) Option {
	return func(e *Estimator) { e.reporter = r }
}

// New creates an Estimator for cfg
func New(cfg config.Config, opts ...Option) *Estimator {
	e := &Estimator{cfg: cfg, pool: workerpool.New(cfg.Workers)}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.fs == nil {
		e.fs = afero.NewOsFs()
	}
	if e.store == nil {
		e.store = checkpoint.NewStore(e.fs, cfg.ModelStatesDir, e.logger)
	}
	if e.reporter == nil {
		e.reporter = stats.NewReporter(cfg, e.logger, e.drawer)
	}
	return e
}

// Train trains without validation
func (e *Estimator) Train(ctx context.Context, source *knowledge.TripleSource, factory ModelFactory) (nn.Model, error) {
	return e.TrainAndValidate(ctx, source, factory, false)
}

// TrainAndValidate trains for cfg.Epoches epochs, continuing after the
// checkpoint named by cfg.Resume when set. Each epoch is optionally validated
// and always checkpointed. ctx is checked between epochs.
func (e *Estimator) TrainAndValidate(ctx context.Context, source *knowledge.TripleSource, factory ModelFactory, enableValidation bool) (nn.Model, error) {
	if err := e.checkFreshRun(); err != nil {
		return nil, err
	}
	loader, err := data.CreateDataLoader(source, e.cfg, factory.RequireLabels(), data.Training)
	if err != nil {
		return nil, errors.Wrapf(err, "creating training loader")
	}
	var validLoader *data.Loader
	if enableValidation {
		validLoader, err = data.CreateDataLoader(source, e.cfg, false, data.Validation)
		if err != nil {
			return nil, errors.Wrapf(err, "creating validation loader")
		}
	}

	module, err := factory.New(source, e.cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "creating model %s", e.cfg.Model)
	}
	model := nn.Wrap(module, e.cfg.Strategy, e.cfg.Devices)

	optimizer, err := e.createOptimizer(model)
	if err != nil {
		return nil, err
	}
	state, err := e.restore(model, optimizer)
	if err != nil {
		return nil, err
	}
	start := 1
	if state != nil {
		start = state.Epoch + 1
	}

	e.reporter.Prepare(enableValidation)
	engine := evaluation.NewEngine(source, e.cfg, e.logger)

	for epoch := start; epoch < start+e.cfg.Epoches; epoch++ {
		if err := ctx.Err(); err != nil {
			return model, err
		}

		model.Train()
		e.logger.Info("--------------------")
		e.logger.Info(fmt.Sprintf("Training at epoch %d", epoch))
		e.logger.Info("--------------------")

		lossEpoch, err := e.trainEpoch(model, optimizer, loader, epoch)
		if err != nil {
			return model, errors.Wrapf(err, "training epoch %d", epoch)
		}
		e.reporter.ReportLoss(epoch, lossEpoch)

		var validErr error
		if enableValidation {
			e.logger.Info(fmt.Sprintf("Evaluation for epoch %d", epoch))
			model.Eval()
			result, err := engine.PredictLinks(ctx, model, validLoader, e.pool)
			if err != nil {
				validErr = errors.Wrapf(err, "validating epoch %d", epoch)
			} else {
				e.reporter.ReportPrediction(result, epoch, data.Validation.String())
			}
		}

		// the trained epoch is checkpointed even when its validation failed
		if _, err := e.store.Save(e.cfg.Name, &checkpoint.ModelState{
			Epoch:     epoch,
			StateDict: model.StateDict(),
			Optimizer: optimizer.StateDict(),
		}); err != nil {
			return model, err
		}
		if validErr != nil {
			return model, validErr
		}
	}

	return model, e.flushDrawer()
}

// trainEpoch runs one pass over the training batches and returns the summed loss
func (e *Estimator) trainEpoch(model nn.Model, optimizer optim.Optimizer, loader *data.Loader, epoch int) (float64, error) {
	it := loader.Iterate(context.Background(), epoch)
	defer it.Close()

	constrainer, _ := model.(nn.Constrainer)
	n := loader.Len()
	lossEpoch := 0.0
	for i := 0; ; i++ {
		batch, ok := it.Next()
		if !ok {
			break
		}
		e.logger.Info(fmt.Sprintf("Training batch %d/%d", i+1, n))

		optimizer.ZeroGrad()
		positive, negative := data.ConvertBatch(batch)
		loss, err := model.Forward(positive, negative)
		if err != nil {
			return 0, errors.Wrapf(err, "batch %d", i+1)
		}
		lossSum := loss.Sum()
		loss.Backward()
		optimizer.Step()
		if constrainer != nil {
			constrainer.Constrain()
		}
		lossEpoch += lossSum
	}
	return lossEpoch, nil
}

// createOptimizer resolves cfg.Optimizer. An unknown name falls back to the
// default optimizer with a warning; a missing learning rate is fatal.
func (e *Estimator) createOptimizer(model nn.Model) (optim.Optimizer, error) {
	kind, err := optim.ParseKind(e.cfg.Optimizer)
	if err != nil {
		e.logger.Warn("falling back to the default optimizer",
			zap.Error(err),
			zap.Stringer("optimizer", kind))
	}
	optimizer, err := optim.New(kind, optim.HyperparamsFromConfig(e.cfg), model.Parameters())
	if err != nil {
		return nil, errors.Wrapf(err, "creating optimizer %s", kind)
	}
	return optimizer, nil
}

// restore loads the checkpoint requested by cfg.Resume into model and
// optimizer. It returns nil when the run starts fresh.
func (e *Estimator) restore(model nn.Model, optimizer optim.Optimizer) (*checkpoint.ModelState, error) {
	state, err := e.store.Resolve(e.cfg)
	if err != nil || state == nil {
		return nil, err
	}
	if err := model.LoadStateDict(state.StateDict); err != nil {
		return nil, &checkpoint.ResumeError{Path: e.cfg.Resume, Err: err}
	}
	if optimizer != nil {
		if err := optimizer.LoadStateDict(state.Optimizer); err != nil {
			return nil, &checkpoint.ResumeError{Path: e.cfg.Resume, Err: err}
		}
	}
	e.logger.Info(fmt.Sprintf("Resumed from epoch %d", state.Epoch))
	return state, nil
}

// checkFreshRun refuses to start a run from scratch over the checkpoints of an
// earlier run with the same name.
func (e *Estimator) checkFreshRun() error {
	if e.cfg.Resume != "" {
		return nil
	}
	epochs, err := e.store.List(e.cfg.Name)
	if err != nil {
		return errors.Wrapf(err, "listing checkpoints of %s", e.cfg.Name)
	}
	if len(epochs) > 0 {
		return &config.ConfigurationError{
			Field:  "name",
			Reason: fmt.Sprintf("run %s already has checkpoints up to epoch %d, set resume or pick another name", e.cfg.Name, epochs[len(epochs)-1]),
		}
	}
	return nil
}

// requireCheckpoint loads the checkpoint of an inference-only run
func (e *Estimator) requireCheckpoint(model nn.Model) (*checkpoint.ModelState, error) {
	if e.cfg.Resume == "" {
		return nil, &config.ConfigurationError{Field: "resume", Reason: "a checkpoint is required for inference"}
	}
	return e.restore(model, nil)
}

func (e *Estimator) flushDrawer() error {
	d := e.reporter.Drawer()
	if d == nil {
		return nil
	}

	path, err := stats.WriteLoggingData(e.fs, d.DumpRawData(), e.cfg)
	if err != nil {
		return err
	}
	e.logger.Info("wrote logging data", zap.String("path", path))

	written, err := d.Render(e.fs, filepath.Join(e.cfg.PlotDir, e.cfg.Name))
	if err != nil {
		return err
	}
	e.logger.Info("rendered plots", zap.Strings("paths", written))
	return nil
}

// Test evaluates the checkpoint named by cfg.Resume on the test split
func (e *Estimator) Test(ctx context.Context, source *knowledge.TripleSource, factory ModelFactory) (*evaluation.PredictionResult, error) {
	loader, err := data.CreateDataLoader(source, e.cfg, false, data.Testing)
	if err != nil {
		return nil, errors.Wrapf(err, "creating test loader")
	}

	module, err := factory.New(source, e.cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "creating model %s", e.cfg.Model)
	}
	model := nn.Wrap(module, e.cfg.Strategy, e.cfg.Devices)
	state, err := e.requireCheckpoint(model)
	if err != nil {
		return nil, err
	}
	model.Eval()

	e.logger.Info("Testing starts")
	result, err := evaluation.PredictLinks(ctx, model, source, e.cfg, loader, e.pool, e.logger)
	if err != nil {
		return nil, errors.Wrapf(err, "testing")
	}
	e.reporter.ReportPrediction(result, state.Epoch, data.Testing.String())
	return result, nil
}
