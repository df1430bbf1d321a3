// Package workspace resets the directories a run writes to.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Resetter clears the state left behind by a previous run.
type Resetter interface {
	Reset() (Result, error)
}

// Result counts what a reset removed.
type Result struct {
	FilesRemoved       int
	LogRemoved         bool
	ArchiveDirsRemoved int
}

// Workspace names the paths a run writes to.
type Workspace struct {
	OutputDir   string
	TrackerPath string
	ArchiveDir  string // optional; consumer-side archive of processed batches
}

var _ Resetter = Workspace{}

// Reset removes every file in OutputDir, the tracker log, and every
// subdirectory of ArchiveDir, then recreates OutputDir and the tracker's
// parent directory. Read-only files are made writable before removal.
// Subdirectories of OutputDir are left alone.
func (w Workspace) Reset() (Result, error) {
	var res Result

	entries, err := os.ReadDir(w.OutputDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return res, fmt.Errorf("reading output directory: %w", err)
	}
	for _, e := range entries {
		path := filepath.Join(w.OutputDir, e.Name())
		if e.IsDir() {
			logrus.Debugf("Reset: leaving directory %s", path)
			continue
		}
		_ = os.Chmod(path, 0o644)
		if err := os.Remove(path); err != nil {
			return res, fmt.Errorf("removing %s: %w", path, err)
		}
		res.FilesRemoved++
	}

	if err := os.Remove(w.TrackerPath); err == nil {
		res.LogRemoved = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return res, fmt.Errorf("removing tracker log: %w", err)
	}

	if w.ArchiveDir != "" {
		archived, err := os.ReadDir(w.ArchiveDir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("reading archive directory: %w", err)
		}
		for _, e := range archived {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(w.ArchiveDir, e.Name())
			if err := os.RemoveAll(path); err != nil {
				logrus.Warnf("Reset: could not remove archive directory %s: %v", path, err)
				continue
			}
			res.ArchiveDirsRemoved++
		}
	}

	if err := os.MkdirAll(w.OutputDir, 0o755); err != nil {
		return res, fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.TrackerPath), 0o755); err != nil {
		return res, fmt.Errorf("creating tracker directory: %w", err)
	}

	logrus.Infof("Reset workspace: removed %d files, %d archive directories, tracker log removed=%v",
		res.FilesRemoved, res.ArchiveDirsRemoved, res.LogRemoved)
	return res, nil
}
