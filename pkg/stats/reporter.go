package stats

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/drawer"
	"github.com/cnclabs/kgekit/pkg/evaluation"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Plot keys filled by the reporter
const (
	LossFeatureKey     = "loss"
	MeanRankFeatureKey = "mean_rank"
	HitsFeatureKey     = "hits"
)

// GenDrawerOption returns the option of a per-epoch plot of the run
func GenDrawerOption(cfg config.Config, title string) drawer.Option {
	return drawer.Option{
		Title:  fmt.Sprintf("%s (%s, %s)", title, cfg.Name, cfg.Model),
		XLabel: "epoch",
		YLabel: title,
	}
}

// PreparePlotValidationResult creates the plots filled by ReportPrediction
func PreparePlotValidationResult(d *drawer.Drawer, cfg config.Config) {
	d.CreatePlot(MeanRankFeatureKey, GenDrawerOption(cfg, "Mean rank"))
	d.CreatePlot(HitsFeatureKey, GenDrawerOption(cfg, "Hits"))
}

// Reporter logs losses and prediction metrics and, when a drawer is
// attached, records them as plot series.
type Reporter struct {
	cfg    config.Config
	logger *zap.Logger
	drawer *drawer.Drawer
}

// NewReporter creates a reporter; d may be nil
func NewReporter(cfg config.Config, logger *zap.Logger, d *drawer.Drawer) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{cfg: cfg, logger: logger, drawer: d}
}

// Drawer returns the attached drawer, or nil
func (r *Reporter) Drawer() *drawer.Drawer {
	return r.drawer
}

// Prepare creates the plots of a run
func (r *Reporter) Prepare(enableValidation bool) {
	if r.drawer == nil {
		return
	}
	r.drawer.CreatePlot(LossFeatureKey, GenDrawerOption(r.cfg, "Loss value"))
	if enableValidation {
		PreparePlotValidationResult(r.drawer, r.cfg)
	}
}

// ReportLoss records the summed loss of an epoch
func (r *Reporter) ReportLoss(epoch int, loss float64) {
	r.logger.Info(fmt.Sprintf("Epoch %d: loss %g", epoch, loss))
	if r.drawer != nil {
		r.append(LossFeatureKey, "loss", epoch, loss)
	}
}

// ReportPrediction logs the metrics of a prediction result tagged with the
// epoch it was produced at, and returns them.
func (r *Reporter) ReportPrediction(result *evaluation.PredictionResult, epoch int, split string) Summary {
	s := Compute(result, r.cfg.Hits)
	for _, m := range append(s.Directions, s.Overall) {
		r.logger.Info(fmt.Sprintf("Epoch %d %s %s", epoch, split, m),
			zap.Int("epoch", epoch),
			zap.String("split", split),
			zap.Int("count", m.Count))
	}

	if r.drawer != nil {
		for _, m := range append(s.Directions, s.Overall) {
			r.append(MeanRankFeatureKey, m.Direction, epoch, m.MeanRank)
			r.append(MeanRankFeatureKey, m.Direction+" filtered", epoch, m.MeanFilteredRank)
		}
		for _, k := range sortedKeys(s.Overall.Hits) {
			r.append(HitsFeatureKey, fmt.Sprintf("hits@%d", k), epoch, s.Overall.Hits[k])
			r.append(HitsFeatureKey, fmt.Sprintf("hits@%d filtered", k), epoch, s.Overall.FilteredHits[k])
		}
	}
	return s
}

func (r *Reporter) append(key, line string, epoch int, y float64) {
	if err := r.drawer.Append(key, line, float64(epoch), y); err != nil {
		r.logger.Warn("dropping plot point", zap.Error(err))
	}
}

// LoggingData is the raw drawer content persisted at the end of a run
type LoggingData struct {
	RunID     string                    `json:"run_id"`
	Name      string                    `json:"name"`
	Model     string                    `json:"model"`
	CreatedAt time.Time                 `json:"created_at"`
	Plots     map[string]drawer.RawPlot `json:"plots"`
}

// WriteLoggingData writes the drawer's raw data as JSON under cfg.LogDir and
// returns the written path
func WriteLoggingData(fs afero.Fs, raw map[string]drawer.RawPlot, cfg config.Config) (string, error) {
	data := LoggingData{
		RunID:     uuid.New().String(),
		Name:      cfg.Name,
		Model:     cfg.Model,
		CreatedAt: time.Now().UTC(),
		Plots:     raw,
	}

	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", errors.Wrapf(err, "encoding logging data")
	}

	dir := filepath.Join(cfg.LogDir, cfg.Name)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating %s", dir)
	}
	path := filepath.Join(dir, data.RunID+".json")
	if err := afero.WriteFile(fs, path, buf, 0644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}
	return path, nil
}
