// Package stopflag implements a file used to ask a long-running search to
// stop after its current generation. The flag is raised by deleting the file
// or writing anything into it.
package stopflag

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Flag is a stop-signal file.
type Flag struct {
	path string
}

// New returns the flag backed by path.
func New(path string) *Flag {
	return &Flag{path: path}
}

// Path returns the flag file path.
func (f *Flag) Path() string { return f.path }

// Reset creates the flag file, or truncates it if it exists.
func (f *Flag) Reset() error {
	file, err := os.Create(f.path)
	if err != nil {
		return fmt.Errorf("reset stop flag: %w", err)
	}
	return file.Close()
}

// Raised reports whether a stop was requested: the file is gone or not empty.
func (f *Flag) Raised() (bool, error) {
	fi, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check stop flag: %w", err)
	}
	return fi.Size() > 0, nil
}

// Raise requests a stop by writing into the file.
func (f *Flag) Raise() error {
	if err := os.WriteFile(f.path, []byte("stop\n"), 0o644); err != nil {
		return fmt.Errorf("raise stop flag: %w", err)
	}
	return nil
}
