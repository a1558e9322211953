package suite

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Workspace hands out a private directory per test run, so tests never
// share intermediate files
type Workspace struct {
	fs   afero.Fs
	root string
	keep bool
}

// NewWorkspace creates a workspace rooted at root. Directories handed to DUT
// and simulator processes must live on the OS filesystem.
func NewWorkspace(fs afero.Fs, root string, keep bool) *Workspace {
	return &Workspace{fs: fs, root: root, keep: keep}
}

// Fs returns the workspace filesystem
func (w *Workspace) Fs() afero.Fs {
	return w.fs
}

// Allocate creates the directory of the seq-th test of a run
func (w *Workspace) Allocate(seq int, test string) (string, error) {
	dir := filepath.Join(w.root, fmt.Sprintf("%03d-%s", seq, test))

	if err := w.fs.RemoveAll(dir); err != nil {
		return "", errors.Wrapf(err, "cannot clean test directory %s", dir)
	}
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "cannot create test directory %s", dir)
	}

	return dir, nil
}

// Release removes a test directory unless the workspace keeps them or keep is set
func (w *Workspace) Release(dir string, keep bool) error {
	if w.keep || keep {
		return nil
	}
	return w.fs.RemoveAll(dir)
}
