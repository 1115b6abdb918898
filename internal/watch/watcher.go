// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package watch re-reads a diagram source file when it changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last write before the
// file is read again.
const DefaultDebounce = 300 * time.Millisecond

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// Watcher observes a single file. The parent directory is watched so
// editors that save by renaming a temp file over the original still
// trigger a reload.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(content string)
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	last     string
}

// New creates a watcher for path. onChange receives the new file contents
// after each burst of writes, and only when the contents differ from the
// last delivered version.
func New(path string, debounce time.Duration, onChange func(content string), logger *zap.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: onChange is nil")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	initial, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		watcher:  fw,
		last:     string(initial),
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Run processes events until ctx is done, then releases the underlying
// watcher. onChange is called from this goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("WATCH_ERROR", zap.String("path", w.path), zap.Error(err))
		}
	}
}

// reload reads the file and delivers it when the contents changed.
func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		// Removed or mid-rename; the next Create event triggers another read.
		w.logger.Debug("WATCH_READ_FAILED", zap.String("path", w.path), zap.Error(err))
		return
	}
	content := string(data)
	if content == w.last {
		return
	}
	w.last = content
	w.logger.Debug("WATCH_CHANGED", zap.String("path", w.path), zap.Int("bytes", len(data)))
	w.onChange(content)
}
