// Package data turns a TripleSource into reproducible batches of positive and
// negative triples for training, and into candidate tensors for evaluation.
package data

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/pkg/errors"
)

// DatasetType selects the split a loader iterates
type DatasetType int

const (
	// Training iterates the train split with negatives
	Training DatasetType = iota
	// Validation iterates the valid split without negatives
	Validation
	// Testing iterates the test split without negatives
	Testing
)

func (d DatasetType) String() string {
	switch d {
	case Training:
		return "training"
	case Validation:
		return "validation"
	case Testing:
		return "testing"
	}
	return fmt.Sprintf("DatasetType(%d)", int(d))
}

// Batch is a group of positive triples with their corruptions.
// Negative holds NegativeRatio corruptions per positive, those of Positive[i]
// at [i*k, (i+1)*k). Labels covers Positive then Negative when collated.
type Batch struct {
	Positive []knowledge.Triple
	Negative []knowledge.Triple
	Labels   []float64

	// Offset is the position of Positive[0] in the split's iteration order
	Offset int
}

// Loader produces the batches of one split
type Loader struct {
	datasetType   DatasetType
	collatesLabel bool
	batchSize     int
	prefetch      int
	seed          int64
	shuffle       bool

	triples   []knowledge.Triple
	corruptor *corruptor
}

// CreateDataLoader builds a loader over the split selected by datasetType.
// Only training loaders shuffle and generate negatives.
func CreateDataLoader(source *knowledge.TripleSource, cfg config.Config, collatesLabel bool, datasetType DatasetType) (*Loader, error) {
	if cfg.BatchSize < 1 {
		return nil, &config.ConfigurationError{Field: "batch_size", Reason: "must be positive"}
	}

	l := &Loader{
		datasetType:   datasetType,
		collatesLabel: collatesLabel,
		batchSize:     cfg.BatchSize,
		prefetch:      cfg.Prefetch,
		seed:          cfg.Seed,
	}

	switch datasetType {
	case Training:
		if len(source.Train) == 0 {
			return nil, errors.Wrapf(knowledge.ErrEmptyTrainSet, "creating %s loader", datasetType)
		}
		if cfg.NegativeRatio() < 1 {
			return nil, &config.ConfigurationError{Field: "negative_entity", Reason: "at least one negative per positive is required"}
		}
		l.triples = source.Train
		l.shuffle = true
		l.corruptor = newCorruptor(source, cfg)
	case Validation:
		l.triples = source.Valid
	case Testing:
		l.triples = source.Test
	default:
		return nil, errors.Errorf("unknown dataset type %d", int(datasetType))
	}
	return l, nil
}

// Len returns the number of batches per epoch
func (l *Loader) Len() int {
	return (len(l.triples) + l.batchSize - 1) / l.batchSize
}

// Triples returns the split in its unshuffled order
func (l *Loader) Triples() []knowledge.Triple {
	return l.triples
}

// DatasetType returns the split this loader iterates
func (l *Loader) DatasetType() DatasetType {
	return l.datasetType
}

// NegativeRatio returns the number of negatives per positive, 0 for evaluation loaders
func (l *Loader) NegativeRatio() int {
	if l.corruptor == nil {
		return 0
	}
	return l.corruptor.ratio()
}

// Batches returns the batches of one epoch. The order and the negatives depend only
// on the seed and the epoch, so a resumed run sees the same data as an
// uninterrupted one.
func (l *Loader) Batches(epoch int) []Batch {
	it := l.Iterate(context.Background(), epoch)
	defer it.Close()

	batches := make([]Batch, 0, l.Len())
	for {
		b, ok := it.Next()
		if !ok {
			return batches
		}
		batches = append(batches, b)
	}
}

// Iterate starts producing the batches of one epoch in a background goroutine.
// Up to cfg.Prefetch batches are built ahead of the consumer.
func (l *Loader) Iterate(ctx context.Context, epoch int) *Iterator {
	ctx, cancel := context.WithCancel(ctx)
	prefetch := l.prefetch
	if prefetch < 0 {
		prefetch = 0
	}
	ch := make(chan Batch, prefetch)

	go func() {
		defer close(ch)

		rng := rand.New(rand.NewSource(epochSeed(l.seed, epoch)))
		order := make([]int, len(l.triples))
		for i := range order {
			order[i] = i
		}
		if l.shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		for start := 0; start < len(order); start += l.batchSize {
			end := start + l.batchSize
			if end > len(order) {
				end = len(order)
			}

			b := l.build(order[start:end], rng)
			b.Offset = start
			select {
			case ch <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Iterator{ch: ch, cancel: cancel}
}

func (l *Loader) build(indices []int, rng *rand.Rand) Batch {
	var b Batch
	b.Positive = make([]knowledge.Triple, len(indices))
	for i, idx := range indices {
		b.Positive[i] = l.triples[idx]
	}

	if l.corruptor != nil {
		b.Negative = make([]knowledge.Triple, 0, len(indices)*l.corruptor.ratio())
		for _, t := range b.Positive {
			b.Negative = l.corruptor.corrupt(b.Negative, t, rng)
		}
	}

	if l.collatesLabel {
		b.Labels = make([]float64, 0, len(b.Positive)+len(b.Negative))
		for range b.Positive {
			b.Labels = append(b.Labels, 1)
		}
		for range b.Negative {
			b.Labels = append(b.Labels, -1)
		}
	}
	return b
}

func epochSeed(seed int64, epoch int) int64 {
	return seed*1000003 + int64(epoch)
}

// Iterator yields the batches of one epoch in order
type Iterator struct {
	ch     <-chan Batch
	cancel context.CancelFunc
}

// Next returns the next batch, or false once the epoch is exhausted
func (it *Iterator) Next() (Batch, bool) {
	b, ok := <-it.ch
	return b, ok
}

// Close stops the producer; it is safe to call after exhaustion
func (it *Iterator) Close() {
	it.cancel()
	for range it.ch {
	}
}
