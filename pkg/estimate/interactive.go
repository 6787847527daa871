package estimate

import (
	"context"
	"fmt"
	"io"

	"github.com/cnclabs/kgekit/pkg/data"
	"github.com/cnclabs/kgekit/pkg/evaluation"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Query is a triple with one element left as a wildcard
type Query struct {
	Head     string
	Relation string
	Tail     string
}

// QuerySource yields queries until it returns io.EOF
type QuerySource interface {
	Next() (Query, error)
}

// SliceSource is a QuerySource over a fixed list
type SliceSource struct {
	queries []Query
}

// NewSliceSource creates a source yielding queries in order
func NewSliceSource(queries ...Query) *SliceSource {
	return &SliceSource{queries: queries}
}

// Next implements QuerySource
func (s *SliceSource) Next() (Query, error) {
	if len(s.queries) == 0 {
		return Query{}, io.EOF
	}
	q := s.queries[0]
	s.queries = s.queries[1:]
	return q, nil
}

// Prediction is the answer to one query. Err is set, and the other fields
// are empty, when the query could not be answered.
type Prediction struct {
	Query      Query
	Type       knowledge.PredictionType
	Candidates int
	Top        []evaluation.Candidate
	Err        error
}

// InteractivePrediction answers every query of queries with the model stored
// in the checkpoint named by cfg.Resume. The model runs on a single device in
// evaluation mode and nothing is written. A malformed query is reported
// through handle and does not stop the sequence.
func (e *Estimator) InteractivePrediction(ctx context.Context, source *knowledge.TripleSource, factory ModelFactory, queries QuerySource, handle func(Prediction)) error {
	model, err := factory.New(source, e.cfg)
	if err != nil {
		return errors.Wrapf(err, "creating model %s", e.cfg.Model)
	}
	if _, err := e.requireCheckpoint(model); err != nil {
		return err
	}
	model.Eval()

	e.logger.Info("Interactive prediction starts")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q, err := queries.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reading query")
		}

		p := e.predict(model, source, q)
		if handle != nil {
			handle(p)
		}
	}
}

func (e *Estimator) predict(model evaluation.Scorer, source *knowledge.TripleSource, q Query) Prediction {
	e.logger.Info("--------------------")
	e.logger.Info(fmt.Sprintf("Prediction input (%s, %s, %s)", q.Head, q.Relation, q.Tail))
	e.logger.Info("--------------------")

	batch, ptype, _, err := data.SieveAndExpandTriple(source, q.Head, q.Relation, q.Tail)
	if err != nil {
		e.logger.Warn("skipping query", zap.Error(err))
		return Prediction{Query: q, Err: err}
	}

	scores, err := model.Score(batch)
	if err != nil {
		e.logger.Warn("scoring query failed", zap.Error(err))
		return Prediction{Query: q, Err: err}
	}

	names := source.Entities
	if ptype == knowledge.PredictRelation {
		names = source.Relations
	}
	top := evaluation.TopCandidates(scores, e.cfg.TopK, names)

	e.logger.Info(fmt.Sprintf("Predicting %s for (%s, %s, %s)", ptype, q.Head, q.Relation, q.Tail))
	e.logger.Info(fmt.Sprintf("Top %d predicted elements are:", len(top)))
	for _, c := range top {
		e.logger.Info(fmt.Sprintf("%d: %s (id %d) score %.6f", c.Rank, c.Name, c.ID, c.Score))
	}
	return Prediction{Query: q, Type: ptype, Candidates: batch.Len(), Top: top}
}
