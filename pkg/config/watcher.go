// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"crypto/sha256"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a Watcher fingerprints its files.
const DefaultWatchInterval = time.Second

// Watcher reloads a configuration file, plus its profile overlay, whenever
// their contents change. Only configurations that pass Validate are
// published; a broken edit leaves the previous one in place.
type Watcher struct {
	path     string
	profile  string
	args     []string
	sets     []keyValue
	interval time.Duration
	logger   *slog.Logger

	mu          sync.RWMutex
	current     *Config
	fingerprint [sha256.Size]byte
	subscribers []func(prev, next *Config)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger used for reload reports.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatchProfile watches and applies the profile overlay as well.
func WithWatchProfile(profile string) WatcherOption {
	return func(w *Watcher) { w.profile = profile }
}

// WithWatchOverrides reapplies the --set flags found in args on every
// reload, as LoadWithCLI does at startup. --config and --profile in args
// are ignored; the watched path and WithWatchProfile decide those.
func WithWatchOverrides(args []string) WatcherOption {
	return func(w *Watcher) { w.args = args }
}

// NewWatcher loads path once. The initial configuration must be loadable but
// is not required to be valid, matching Load.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if len(w.args) > 0 {
		cli, err := parseCLIOverrides(w.args)
		if err != nil {
			return nil, err
		}
		w.sets = cli.sets
	}
	cfg, err := load(path, w.profile, w.sets)
	if err != nil {
		return nil, err
	}
	w.current = cfg
	w.fingerprint = w.sum()
	return w, nil
}

// Subscribe registers fn to run after every published reload. Callbacks run
// on the watcher goroutine, in registration order.
func (w *Watcher) Subscribe(fn func(prev, next *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Config returns the last published configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start polls in the background until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.Poll(ctx); err != nil {
					w.logger.WarnContext(ctx, "config reload rejected", "path", w.path, "error", err)
				}
			}
		}
	}()
}

// Stop ends polling and waits for the loop to exit. It is safe to call more
// than once, and before Start.
func (w *Watcher) Stop() {
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

// Poll reloads when the watched files changed since the last poll. It
// reports whether a new configuration was published.
func (w *Watcher) Poll(ctx context.Context) (bool, error) {
	sum := w.sum()
	w.mu.Lock()
	if sum == w.fingerprint {
		w.mu.Unlock()
		return false, nil
	}
	w.fingerprint = sum
	w.mu.Unlock()

	next, err := load(w.path, w.profile, w.sets)
	if err != nil {
		return false, err
	}
	if err := Validate(*next).Err(); err != nil {
		return false, err
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	subscribers := append([]func(prev, next *Config){}, w.subscribers...)
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "config reloaded", "path", w.path, "profile", w.profile)
	for _, fn := range subscribers {
		fn(prev, next)
	}
	return true, nil
}

// sum hashes the base file and the overlay. Missing files hash as empty so
// deleting an overlay counts as a change.
func (w *Watcher) sum() [sha256.Size]byte {
	h := sha256.New()
	paths := []string{w.path}
	if w.profile != "" {
		paths = append(paths, profilePath(w.path, w.profile))
	}
	for _, p := range paths {
		io.WriteString(h, p)
		if f, err := os.Open(p); err == nil {
			_, _ = io.Copy(h, f)
			f.Close()
		}
		h.Write([]byte{0})
	}
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}
