// Package fsutil holds filesystem helpers shared by the batch translator.
package fsutil

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// DirStatus is the outcome of EnsureDir.
type DirStatus int

const (
	DirFailed DirStatus = iota
	DirCreated
	DirPresent
)

func (s DirStatus) String() string {
	switch s {
	case DirCreated:
		return "created"
	case DirPresent:
		return "already-present"
	default:
		return "failed"
	}
}

// EnsureDir makes sure path exists as a directory. An existing directory is
// not an error, including one created concurrently by another worker between
// the check and the creation attempt. A non-directory in the way is.
func EnsureDir(fs afero.Fs, path string, perm os.FileMode) (DirStatus, error) {
	if ok, err := afero.DirExists(fs, path); err == nil && ok {
		return DirPresent, nil
	}

	if err := fs.MkdirAll(path, perm); err != nil {
		if ok, statErr := afero.DirExists(fs, path); statErr == nil && ok {
			return DirPresent, nil
		}
		return DirFailed, fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return DirCreated, nil
}
