package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultWatchInterval = 5 * time.Second

// Watcher polls the config file and hands every new valid revision to a
// callback. Edits that fail to parse or validate are logged and skipped; the
// server keeps running on the last good config.
type Watcher struct {
	path  string
	every time.Duration
	apply func(old, next *Config)
	log   *slog.Logger

	mu      sync.Mutex
	current *Config
	seen    revision

	cancel  context.CancelFunc
	stopped chan struct{}
}

// revision identifies one version of the file on disk.
type revision struct {
	size  int64
	mtime time.Time
	sum   [sha256.Size]byte
}

// sameStat reports whether info still describes r without reading the file.
func (r revision) sameStat(info os.FileInfo) bool {
	return info.Size() == r.size && info.ModTime().Equal(r.mtime)
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.every = d
		}
	}
}

// WithLogger sets the logger used for reload messages.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path and starts polling it. onChange runs on the polling
// goroutine after each successful reload and may call [Watcher.Current].
func NewWatcher(path string, onChange func(old, next *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:    path,
		every:   defaultWatchInterval,
		apply:   onChange,
		log:     slog.Default(),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, rev, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, rev

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for an in-flight reload to finish. Calling it
// again is a no-op.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.stopped
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.stopped)
	t := time.NewTicker(w.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config: watched file unavailable", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := w.seen.sameStat(info)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, rev, err := w.read()
	if err != nil {
		w.log.Warn("config: ignoring invalid edit", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if rev.sum == w.seen.sum {
		w.seen = rev
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.seen = cfg, rev
	w.mu.Unlock()

	w.log.Info("config: reloaded", "path", w.path)
	if w.apply != nil {
		w.apply(old, cfg)
	}
}

func (w *Watcher) read() (*Config, revision, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, revision{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, revision{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, revision{}, err
	}
	return cfg, revision{size: info.Size(), mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
