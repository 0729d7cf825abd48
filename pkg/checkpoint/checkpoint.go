// Package checkpoint persists the search state between runs.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Version is the current checkpoint format.
const Version = 1

var (
	ErrNotFound = errors.New("checkpoint: not found")
	ErrCorrupt  = errors.New("checkpoint: corrupt")
)

// Checkpoint is the controller state after a completed generation.
type Checkpoint struct {
	Version      int         `json:"version"`
	SavedAtUnix  int64       `json:"saved_at_unix"`
	Seed         int64       `json:"seed"`
	Generation   int         `json:"generation"`
	Population   [][]float64 `json:"population"`
	Elite        []float64   `json:"elite"`
	EliteFitness float64     `json:"elite_fitness"`
}

// Store reads and writes a checkpoint file.
type Store struct {
	path string
}

// NewStore returns a store for the checkpoint file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string { return s.path }

// Exists reports whether a checkpoint file is present.
func (s *Store) Exists() bool {
	fi, err := os.Stat(s.path)
	return err == nil && fi.Mode().IsRegular()
}

// Save writes cp to a temporary file and renames it over the checkpoint, so
// a crash mid-write leaves the previous checkpoint intact.
func (s *Store) Save(cp Checkpoint) error {
	cp.Version = Version
	cp.SavedAtUnix = time.Now().Unix()

	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint. A missing file returns ErrNotFound.
func (s *Store) Load() (Checkpoint, error) {
	var cp Checkpoint
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return cp, ErrNotFound
	}
	if err != nil {
		return cp, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(b, &cp); err != nil {
		return cp, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if cp.Version != Version {
		return cp, fmt.Errorf("%w: version %d, want %d", ErrCorrupt, cp.Version, Version)
	}
	if len(cp.Population) == 0 {
		return cp, fmt.Errorf("%w: empty population", ErrCorrupt)
	}
	return cp, nil
}
