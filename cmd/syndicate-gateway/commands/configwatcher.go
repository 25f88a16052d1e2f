package commands

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/config"
)

// configWatcher reacts to edits of the on-disk config file by re-applying
// the subset of settings that are safe to change without reconstructing the
// gateway: log level and log format. Everything else (identity, cache
// paths, pipeline worker counts) needs a restart, since it is wired into
// long-lived goroutines and connections at gateway.New time.
//
// Cached state and the atomic-swap-on-change pattern mirror
// pkg/controlplane/runtime's own settings watcher; the change signal here
// is an fsnotify event on the config file rather than a polled DB version
// counter.
type configWatcher struct {
	mu   sync.RWMutex
	path string
	last *config.Config

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	stopped chan struct{}
}

// newConfigWatcher returns nil, err when path is empty (the default config
// search path was used, so there is no single file to watch) or when the
// underlying fsnotify watcher cannot be created.
func newConfigWatcher(path string, initial *config.Config) (*configWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("no explicit config file path to watch")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	return &configWatcher{
		path:    path,
		last:    initial,
		watcher: w,
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start runs the watch loop in a background goroutine until ctx is
// cancelled or Stop is called.
func (w *configWatcher) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)
		defer func() { _ = w.watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.reload()
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", logger.Err(err))
			}
		}
	}()
}

// Stop signals the watch loop to exit and waits for it to finish.
func (w *configWatcher) Stop() {
	close(w.stopCh)
	<-w.stopped
}

func (w *configWatcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		logger.Warn("config reload failed, keeping previous settings", logger.Err(err))
		return
	}

	w.mu.Lock()
	prev := w.last
	w.last = cfg
	w.mu.Unlock()

	if cfg.Logging.Level != prev.Logging.Level {
		logger.SetLevel(cfg.Logging.Level)
		logger.Info("log level reloaded", "level", cfg.Logging.Level)
	}
	if cfg.Logging.Format != prev.Logging.Format {
		logger.SetFormat(cfg.Logging.Format)
		logger.Info("log format reloaded", "format", cfg.Logging.Format)
	}
}
