package nn

import (
	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/data"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Wrap applies the execution strategy chosen in the configuration. Callers
// keep using the returned Model without knowing which strategy is active.
func Wrap(m Model, strategy string, devices int) Model {
	if strategy == config.StrategyDataParallel && devices > 1 {
		return &DataParallel{Module: m, devices: devices}
	}
	return m
}

// DataParallel splits every batch into shards processed concurrently by the
// wrapped model. Shards only read parameters; gradients are accumulated per
// shard and merged in shard order.
type DataParallel struct {
	Module  Model
	devices int
}

type shard struct {
	from, to int
}

func (dp *DataParallel) shards(n int) []shard {
	size := (n + dp.devices - 1) / dp.devices
	if size == 0 {
		return nil
	}
	var out []shard
	for from := 0; from < n; from += size {
		to := from + size
		if to > n {
			to = n
		}
		out = append(out, shard{from, to})
	}
	return out
}

// Forward implements Model
func (dp *DataParallel) Forward(positive, negative data.Tensor) (*Loss, error) {
	n := positive.Len()
	if n == 0 {
		return dp.Module.Forward(positive, negative)
	}
	if negative.Len()%n != 0 {
		return nil, errors.Errorf("negative batch of %d rows is not a multiple of %d positives", negative.Len(), n)
	}
	k := negative.Len() / n

	parts := dp.shards(n)
	losses := make([]*Loss, len(parts))
	var g errgroup.Group
	for i, s := range parts {
		i, s := i, s
		g.Go(func() error {
			l, err := dp.Module.Forward(positive.Slice(s.from, s.to), negative.Slice(s.from*k, s.to*k))
			losses[i] = l
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var values []float64
	for _, l := range losses {
		values = append(values, l.Values...)
	}
	return NewLoss(values, func(grads *Gradients) {
		partial := make([]*Gradients, len(losses))
		var wg errgroup.Group
		for i, l := range losses {
			i, l := i, l
			wg.Go(func() error {
				partial[i] = NewGradients()
				l.BackwardInto(partial[i])
				return nil
			})
		}
		wg.Wait()
		for _, p := range partial {
			grads.Merge(p)
		}
	}), nil
}

// Score implements Model
func (dp *DataParallel) Score(batch data.Tensor) ([]float64, error) {
	parts := dp.shards(batch.Len())
	scores := make([][]float64, len(parts))
	var g errgroup.Group
	for i, s := range parts {
		i, s := i, s
		g.Go(func() error {
			sc, err := dp.Module.Score(batch.Slice(s.from, s.to))
			scores[i] = sc
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]float64, 0, batch.Len())
	for _, sc := range scores {
		out = append(out, sc...)
	}
	return out, nil
}

// Constrain forwards to the wrapped model when it has constraints
func (dp *DataParallel) Constrain() {
	if c, ok := dp.Module.(Constrainer); ok {
		c.Constrain()
	}
}

// Parameters implements Model
func (dp *DataParallel) Parameters() []*Parameter { return dp.Module.Parameters() }

// Train implements Model
func (dp *DataParallel) Train() { dp.Module.Train() }

// Eval implements Model
func (dp *DataParallel) Eval() { dp.Module.Eval() }

// Training implements Model
func (dp *DataParallel) Training() bool { return dp.Module.Training() }

// StateDict implements Model
func (dp *DataParallel) StateDict() StateDict { return dp.Module.StateDict() }

// LoadStateDict implements Model
func (dp *DataParallel) LoadStateDict(sd StateDict) error { return dp.Module.LoadStateDict(sd) }
