package registry

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Source hands out the current catalog. Sessions take a snapshot when they
// open and keep it frozen for their lifetime; a reload only affects sessions
// opened afterwards.
type Source struct {
	current atomic.Pointer[Registry]
	path    string
	logger  *zap.Logger
}

// NewSource wraps an initial registry. path is the catalog file to reload
// from, empty for the built-in catalog.
func NewSource(initial *Registry, path string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{path: path, logger: logger}
	s.current.Store(initial)
	return s
}

// Current returns the registry new sessions should use.
func (s *Source) Current() *Registry {
	return s.current.Load()
}

// Reload re-reads the catalog file. On error the previous registry stays.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	r, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	s.current.Store(r)
	s.logger.Info("block catalog reloaded", zap.String("path", s.path), zap.Int("types", len(r.names)))
	return nil
}

// Watch reloads the catalog whenever its file changes, until ctx is done.
// Bursts of writes are collapsed into one reload.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	absPath, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if p, _ := filepath.Abs(event.Name); p != absPath {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(250*time.Millisecond, func() {
					if err := s.Reload(); err != nil {
						s.logger.Warn("block catalog reload failed", zap.String("path", absPath), zap.Error(err))
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("block catalog watcher error", zap.Error(err))
			}
		}
	}()

	s.logger.Info("watching block catalog", zap.String("path", absPath))
	return nil
}
