// Package watch follows an output directory the way a downstream consumer
// would and checks every published artifact against the file contract.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/streamsim/batchfeed/feed"
)

// Event reports one artifact seen in the directory.
// Err is non-nil when the artifact breaks the contract.
type Event struct {
	BatchID int64
	Path    string
	Records int
	Err     error
}

// Watcher observes a single output directory.
type Watcher struct {
	dir     string
	fsw     *fsnotify.Watcher
	seen    map[int64]bool
	log     *logrus.Entry
	initial []string
}

// New starts watching dir. When includeExisting is set, artifacts already in
// dir are reported first, in batch id order.
func New(dir string, includeExisting bool) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &Watcher{
		dir:  dir,
		fsw:  fsw,
		seen: make(map[int64]bool),
		log:  logrus.WithField("dir", dir),
	}
	if includeExisting {
		entries, err := os.ReadDir(dir)
		if err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		type named struct {
			id   int64
			name string
		}
		var existing []named
		for _, e := range entries {
			if id, ok := feed.ParseArtifactName(e.Name()); ok && !e.IsDir() {
				existing = append(existing, named{id, e.Name()})
			}
		}
		sort.Slice(existing, func(i, j int) bool { return existing[i].id < existing[j].id })
		for _, n := range existing {
			w.initial = append(w.initial, filepath.Join(dir, n.name))
		}
	}
	return w, nil
}

// Run delivers events to handle until ctx is done or the watcher fails.
// handle returns false to stop watching.
func (w *Watcher) Run(ctx context.Context, handle func(Event) bool) error {
	for _, path := range w.initial {
		if !w.deliver(path, handle) {
			return nil
		}
	}
	w.initial = nil

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", w.dir, err)
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			id, isArtifact := feed.ParseArtifactName(filepath.Base(ev.Name))
			if !isArtifact {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				if !w.deliver(ev.Name, handle) {
					return nil
				}
			case ev.Has(fsnotify.Write) && w.seen[id]:
				err := fmt.Errorf("%s was modified after it was published", ev.Name)
				if !handle(Event{BatchID: id, Path: ev.Name, Err: err}) {
					return nil
				}
			}
		}
	}
}

func (w *Watcher) deliver(path string, handle func(Event) bool) bool {
	if id, ok := feed.ParseArtifactName(filepath.Base(path)); ok && w.seen[id] {
		return true
	}
	id, n, err := feed.CheckArtifact(path)
	w.seen[id] = true
	if err != nil {
		w.log.WithField("batch_id", id).Warnf("Artifact breaks the file contract: %v", err)
	} else {
		w.log.WithField("batch_id", id).Debugf("Observed %s with %d records", filepath.Base(path), n)
	}
	return handle(Event{BatchID: id, Path: path, Records: n, Err: err})
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
