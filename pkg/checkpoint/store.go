// Package checkpoint persists and restores model and optimizer state between
// epochs and runs.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cnclabs/kgekit/pkg/config"
	"github.com/cnclabs/kgekit/pkg/nn"
	"github.com/cnclabs/kgekit/pkg/optim"
	humanize "github.com/dustin/go-humanize"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FilePrefix is the file name of a checkpoint without its epoch suffix
const FilePrefix = "checkpoint.pth.tar"

// ModelState is everything needed to continue training after an epoch
type ModelState struct {
	Epoch     int
	StateDict nn.StateDict
	Optimizer optim.State
}

// ResumeError reports a checkpoint that was requested but could not be restored
type ResumeError struct {
	Path string
	Err  error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("cannot resume from %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause
func (e *ResumeError) Unwrap() error {
	return e.Err
}

// Store reads and writes checkpoints under root/<run name>/
type Store struct {
	fs     afero.Fs
	root   string
	logger *zap.Logger
}

// NewStore creates a store rooted at root on fs
func NewStore(fs afero.Fs, root string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{fs: fs, root: root, logger: logger}
}

// Dir returns the checkpoint directory of a run
func (s *Store) Dir(name string) string {
	return filepath.Join(s.root, name)
}

// Path returns the checkpoint file of a run for an epoch
func (s *Store) Path(name string, epoch int) string {
	return filepath.Join(s.Dir(name), fmt.Sprintf("%s_%d", FilePrefix, epoch))
}

// ErrCheckpointExists is returned by Save when the epoch already has a checkpoint.
var ErrCheckpointExists = errors.New("checkpoint already exists")

// Save writes state as the checkpoint of its epoch. The file is written under
// a temporary name and renamed so a crash never leaves a truncated checkpoint.
// Existing checkpoints are never replaced.
func (s *Store) Save(name string, state *ModelState) (string, error) {
	dir := s.Dir(name)
	path := s.Path(name, state.Epoch)
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return "", errors.Wrapf(err, "checking %s", path)
	}
	if exists {
		return "", errors.Wrapf(ErrCheckpointExists, "saving %s", path)
	}
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating checkpoint dir %s", dir)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return "", errors.Wrapf(err, "encoding checkpoint of epoch %d", state.Epoch)
	}
	payload := snappy.Encode(nil, buf.Bytes())

	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, payload, 0644); err != nil {
		return "", errors.Wrapf(err, "writing %s", tmp)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return "", errors.Wrapf(err, "renaming %s", tmp)
	}

	s.logger.Info("saved checkpoint",
		zap.String("path", path),
		zap.Int("epoch", state.Epoch),
		zap.String("size", humanize.Bytes(uint64(len(payload)))))
	return path, nil
}

// Load reads the checkpoint at path
func (s *Store) Load(path string) (*ModelState, error) {
	payload, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing %s", path)
	}

	var state ModelState
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&state); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return &state, nil
}

// List returns the epochs that have a checkpoint for a run, ascending
func (s *Store) List(name string) ([]int, error) {
	dir := s.Dir(name)
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "checking %s", dir)
	}
	if !exists {
		return nil, nil
	}

	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	var epochs []int
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		suffix := strings.TrimPrefix(info.Name(), FilePrefix+"_")
		if suffix == info.Name() {
			continue
		}
		epoch, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		epochs = append(epochs, epoch)
	}
	sort.Ints(epochs)
	return epochs, nil
}

// Latest returns the path of the newest checkpoint of a run
func (s *Store) Latest(name string) (string, bool, error) {
	epochs, err := s.List(name)
	if err != nil || len(epochs) == 0 {
		return "", false, err
	}
	return s.Path(name, epochs[len(epochs)-1]), true, nil
}

// Resolve returns the state requested by cfg.Resume. An empty Resume starts
// fresh and returns nil. Any checkpoint that was asked for and cannot be read
// is a *ResumeError.
func (s *Store) Resolve(cfg config.Config) (*ModelState, error) {
	path := cfg.Resume
	switch path {
	case "":
		return nil, nil
	case config.ResumeLatest:
		latest, ok, err := s.Latest(cfg.Name)
		if err != nil {
			return nil, &ResumeError{Path: s.Dir(cfg.Name), Err: err}
		}
		if !ok {
			return nil, &ResumeError{Path: s.Dir(cfg.Name), Err: errors.New("no checkpoint found")}
		}
		path = latest
	}

	state, err := s.Load(path)
	if err != nil {
		return nil, &ResumeError{Path: path, Err: err}
	}
	s.logger.Info("loaded checkpoint", zap.String("path", path), zap.Int("epoch", state.Epoch))
	return state, nil
}
