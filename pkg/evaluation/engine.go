// Package evaluation runs link prediction over a split and collects the raw
// and filtered rank of every triple in every prediction direction.
package evaluation

import (
	"context"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/data"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/cnclabs/kgekit/pkg/ranking"
	"github.com/cnclabs/kgekit/pkg/workerpool"
	"github.com/pkg/errors"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
	"go.uber.org/zap"
)

// Scorer scores candidate triples; higher is more plausible
type Scorer interface {
	Score(batch data.Tensor) ([]float64, error)
}

// Ranker turns a scored candidate vector into raw and filtered ranks
type Ranker interface {
	Rank(req ranking.Request) (raw, filtered int, err error)
}

// Rank is the position of a true triple among its candidates
type Rank struct {
	Raw      int
	Filtered int
}

// PredictionResult holds, per direction, the rank of every evaluated triple
// indexed by the triple's position in the split.
type PredictionResult struct {
	Directions []knowledge.PredictionType
	Ranks      map[knowledge.PredictionType][]Rank
}

func newPredictionResult(directions []knowledge.PredictionType, n int) *PredictionResult {
	r := &PredictionResult{
		Directions: directions,
		Ranks:      make(map[knowledge.PredictionType][]Rank, len(directions)),
	}
	for _, d := range directions {
		r.Ranks[d] = make([]Rank, n)
	}
	return r
}

// Len returns the number of evaluated triples
func (r *PredictionResult) Len() int {
	if len(r.Directions) == 0 {
		return 0
	}
	return len(r.Ranks[r.Directions[0]])
}

// Engine evaluates a model on the splits of one TripleSource
type Engine struct {
	source *knowledge.TripleSource
	ranker Ranker
	cfg    config.Config
	logger *zap.Logger
}

// NewEngine creates an engine whose filtered ranks ignore every triple of
// every split of source
func NewEngine(source *knowledge.TripleSource, cfg config.Config, logger *zap.Logger) *Engine {
	return NewEngineWithRanker(source, ranking.New(source.Train, source.Valid, source.Test), cfg, logger)
}

// NewEngineWithRanker creates an engine using a custom ranker
func NewEngineWithRanker(source *knowledge.TripleSource, ranker Ranker, cfg config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{source: source, ranker: ranker, cfg: cfg, logger: logger}
}

// Directions returns the prediction directions evaluated for each triple
func (e *Engine) Directions() []knowledge.PredictionType {
	if e.cfg.PredictRelation {
		return []knowledge.PredictionType{knowledge.PredictHead, knowledge.PredictRelation, knowledge.PredictTail}
	}
	return []knowledge.PredictionType{knowledge.PredictHead, knowledge.PredictTail}
}

// PredictLinks ranks every triple of the loader's split in every direction.
// Each (triple, direction) pair is an independent job writing to its own slot
// of the result, so the result does not depend on the pool size or on the
// order jobs complete in. A nil pool runs the jobs sequentially.
func (e *Engine) PredictLinks(ctx context.Context, model Scorer, loader *data.Loader, pool *workerpool.Pool) (*PredictionResult, error) {
	directions := e.Directions()
	n := len(loader.Triples())
	result := newPredictionResult(directions, n)

	err := e.forEachBatch(ctx, loader, func(b data.Batch) error {
		var jobs []workerpool.Job
		for i, t := range b.Positive {
			idx, t := b.Offset+i, t
			for _, p := range directions {
				p := p
				jobs = append(jobs, func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					r, err := e.rank(model, t, p)
					if err != nil {
						return errors.Wrapf(err, "ranking %s of triple %d", p, idx)
					}
					result.Ranks[p][idx] = r
					return nil
				})
			}
		}

		if pool == nil {
			for _, job := range jobs {
				if err := job(); err != nil {
					return err
				}
			}
			return nil
		}
		pool.AddBlocking(jobs)
		return pool.Wait()
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("link prediction done",
		zap.Stringer("split", loader.DatasetType()),
		zap.Int("triples", n),
		zap.Int("directions", len(directions)))
	return result, nil
}

func (e *Engine) forEachBatch(ctx context.Context, loader *data.Loader, fn func(data.Batch) error) error {
	it := loader.Iterate(ctx, 0)
	defer it.Close()

	next := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, ok := it.Next()
		if !ok {
			return errors.New("loader ended early")
		}
		return fn(b)
	}

	if !e.cfg.Progress {
		for i := 0; i < loader.Len(); i++ {
			if err := next(); err != nil {
				return err
			}
		}
		return nil
	}

	var ferr error
	err := tqdm.With(iterators.Interval(0, loader.Len()), "Evaluating "+loader.DatasetType().String(), func(v interface{}) (brk bool) {
		if ferr = next(); ferr != nil {
			return true
		}
		return false
	})
	if ferr != nil {
		return ferr
	}
	return err
}

func (e *Engine) rank(model Scorer, t knowledge.Triple, p knowledge.PredictionType) (Rank, error) {
	n := e.source.NumEntities()
	if p == knowledge.PredictRelation {
		n = e.source.NumRelations()
	}

	scores, err := model.Score(data.ExpandTriple(t, p, n))
	if err != nil {
		return Rank{}, err
	}
	raw, filtered, err := e.ranker.Rank(ranking.Request{
		Scores: scores,
		Type:   p,
		Triple: t,
		Index:  p.Slot(),
	})
	if err != nil {
		return Rank{}, err
	}
	return Rank{Raw: raw, Filtered: filtered}, nil
}

// PredictLinks evaluates model on the loader's split of source
func PredictLinks(ctx context.Context, model Scorer, source *knowledge.TripleSource, cfg config.Config, loader *data.Loader, pool *workerpool.Pool, logger *zap.Logger) (*PredictionResult, error) {
	return NewEngine(source, cfg, logger).PredictLinks(ctx, model, loader, pool)
}
