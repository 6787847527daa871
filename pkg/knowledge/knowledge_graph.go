package knowledge

import (
	"bufio"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Split file names inside a dataset directory.
const (
	TrainFile = "train.txt"
	ValidFile = "valid.txt"
	TestFile  = "test.txt"
)

// ErrEmptyTrainSet is returned when a dataset has no training triples.
var ErrEmptyTrainSet = errors.New("train set is empty")

// Triple represents a knowledge graph triple (head, relation, tail)
type Triple struct {
	Head     int64
	Relation int64
	Tail     int64
}

// Get returns the element at slot 0 (head), 1 (relation) or 2 (tail).
func (t Triple) Get(slot int) int64 {
	switch slot {
	case 0:
		return t.Head
	case 1:
		return t.Relation
	default:
		return t.Tail
	}
}

// With returns a copy of t with the element at slot replaced by id.
func (t Triple) With(slot int, id int64) Triple {
	switch slot {
	case 0:
		t.Head = id
	case 1:
		t.Relation = id
	default:
		t.Tail = id
	}
	return t
}

// TripleSource owns the train/valid/test splits of a knowledge graph together
// with the entity and relation vocabularies shared by all splits.
type TripleSource struct {
	Train []Triple
	Valid []Triple
	Test  []Triple

	Entities  *Vocabulary
	Relations *Vocabulary
}

// NewTripleSource creates an empty source with fresh vocabularies
func NewTripleSource() *TripleSource {
	return &TripleSource{
		Entities:  NewVocabulary(),
		Relations: NewVocabulary(),
	}
}

// NumEntities returns the number of distinct entities across all splits
func (ts *TripleSource) NumEntities() int64 {
	return int64(ts.Entities.Len())
}

// NumRelations returns the number of distinct relations across all splits
func (ts *TripleSource) NumRelations() int64 {
	return int64(ts.Relations.Len())
}

// Add hashes the names and appends the triple to the given split.
func (ts *TripleSource) Add(split *[]Triple, head, relation, tail string) Triple {
	t := Triple{
		Head:     ts.Entities.GetOrCreate(head),
		Relation: ts.Relations.GetOrCreate(relation),
		Tail:     ts.Entities.GetOrCreate(tail),
	}
	*split = append(*split, t)
	return t
}

// LoadTripleSource loads train.txt, valid.txt and test.txt from dir.
// Format: head relation tail [weight]
// Example: "Barack_Obama born_in Hawaii 1.0"
// The weight column is accepted and ignored. Missing valid/test files give
// empty splits; train.txt is mandatory and must not be empty.
func LoadTripleSource(fs afero.Fs, dir string) (*TripleSource, error) {
	ts := NewTripleSource()

	if err := ts.loadSplit(fs, path.Join(dir, TrainFile), &ts.Train, true); err != nil {
		return nil, err
	}
	if len(ts.Train) == 0 {
		return nil, errors.Wrapf(ErrEmptyTrainSet, "loading %s", dir)
	}
	if err := ts.loadSplit(fs, path.Join(dir, ValidFile), &ts.Valid, false); err != nil {
		return nil, err
	}
	if err := ts.loadSplit(fs, path.Join(dir, TestFile), &ts.Test, false); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *TripleSource) loadSplit(fs afero.Fs, filename string, split *[]Triple, required bool) error {
	file, err := fs.Open(filename)
	if err != nil {
		if !required {
			if exists, _ := afero.Exists(fs, filename); !exists {
				return nil
			}
		}
		return errors.Wrapf(err, "failed to open file %s", filename)
	}
	defer file.Close()

	return errors.Wrapf(ts.ReadTriples(file, split), "reading %s", filename)
}

// ReadTriples parses whitespace separated triples from r into split.
// Lines with fewer than three fields are skipped.
func (ts *TripleSource) ReadTriples(r io.Reader, split *[]Triple) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			continue
		}
		ts.Add(split, parts[0], parts[1], parts[2])
	}
	return scanner.Err()
}
