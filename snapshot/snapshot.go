// Package snapshot manages the on-disk state of a single pipeline run.
//
// Each run writes into its own directory under <root>/.runs/<run id>. Files
// only appear at their fixed location (<root>/<name>) once Promote renames
// them into place, so overlapping runs can never observe each other's
// half-written output.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	RankingFile = "steam_ranking.json"
	AppsFile    = "steam_apps.json"
	HandoffFile = "steam_data.pb"

	runsDir = ".runs"
)

type Workspace struct {
	Root string
	Dir  string
}

// New creates the run directory for runID below root
func New(root, runID string) (*Workspace, error) {
	dir := filepath.Join(root, runsDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &Workspace{Root: root, Dir: dir}, nil
}

// Path is the run-scoped location of name
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// FixedPath is where name lives once promoted
func (w *Workspace) FixedPath(name string) string {
	return filepath.Join(w.Root, name)
}

// WriteFile writes data to name inside the run directory. The content is
// written to a temporary sibling first and renamed over the target, readers
// see either the previous file or the complete new one.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	target := w.Path(name)
	if err := writeAtomic(target, data); err != nil {
		return "", err
	}
	return target, nil
}

// Promote moves each named file from the run directory to its fixed path.
// Files missing from the run directory are skipped.
func (w *Workspace) Promote(names ...string) error {
	if err := os.MkdirAll(w.Root, 0755); err != nil {
		return err
	}
	for _, name := range names {
		src := w.Path(name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(src, w.FixedPath(name)); err != nil {
			return fmt.Errorf("failed to promote %s: %w", name, err)
		}
	}
	return nil
}

// Cleanup removes the run directory and anything left inside it
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Dir)
}

func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}
