// Package watch notifies when a single file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period after the last event before a change fires.
const DefaultDebounce = 100 * time.Millisecond

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

// FileWatcher watches one file. The parent directory is watched instead of the
// file itself so editors that save by rename-and-replace keep being observed.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	name     string
	debounce time.Duration
	logger   zerolog.Logger
}

// NewFileWatcher starts watching path. Events that arrive before Run is
// called are buffered by fsnotify.
func NewFileWatcher(path string, debounce time.Duration, logger zerolog.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &FileWatcher{
		watcher:  w,
		name:     filepath.Base(abs),
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Run calls onChange once per burst of changes to the file and blocks until
// ctx is done. The watcher is closed when Run returns.
func (fw *FileWatcher) Run(ctx context.Context, onChange func()) error {
	defer fw.watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Base(event.Name) != fw.name || event.Op&relevantOps == 0 {
				continue
			}
			fw.logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("file event")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(fw.debounce, onChange)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			fw.logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}
