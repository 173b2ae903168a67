// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/roomkit/roomkit/internal/log"
)

// Holder provides thread-safe access to the current configuration and hot
// reloading from file. A reload that fails to load or validate keeps the old
// configuration; swaps are all-or-nothing.
type Holder struct {
	mu      sync.RWMutex
	current Config
	path    string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	listenerMu sync.RWMutex
	listeners  []chan<- Config
}

// NewHolder wraps an already-loaded configuration. path may be empty when
// the configuration came from env only; StartWatcher is then a no-op.
func NewHolder(initial Config, path string) *Holder {
	return &Holder{
		current: initial,
		path:    path,
		logger:  log.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload re-reads the file and swaps the configuration atomically.
func (h *Holder) Reload(_ context.Context) error {
	newCfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).
			Str(log.FieldEvent, "config.reload_failed").
			Msg("keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notify(newCfg)
	h.logChanges(oldCfg, newCfg)
	h.logger.Info().
		Str(log.FieldEvent, "config.reload_success").
		Msg("configuration reloaded")
	return nil
}

// StartWatcher watches the config file and reloads on change, debounced.
// Without a file path it is a no-op.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.path == "" {
		h.logger.Info().
			Str(log.FieldEvent, "config.watcher_disabled").
			Msg("no config file, watcher disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(h.path); err != nil {
		_ = watcher.Close() //nolint:errcheck // error path
		return fmt.Errorf("watch config file: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().
		Str(log.FieldEvent, "config.watcher_started").
		Str("path", h.path).
		Msg("watching config file")
	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	// Editors produce bursts of events per save; collapse them.
	const debounce = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = h.watcher.Close() //nolint:errcheck // shutdown path
			h.logger.Info().
				Str(log.FieldEvent, "config.watcher_stopped").
				Msg("config watcher stopped")
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().Err(err).
						Str(log.FieldEvent, "config.auto_reload_failed").
						Msg("automatic reload failed")
				}
			})

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).
				Str(log.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop closes the watcher if one is running.
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close() //nolint:errcheck // shutdown path
	}
}

// OnReload registers a channel that receives every successfully reloaded
// configuration. Sends are non-blocking; a full channel is skipped.
func (h *Holder) OnReload(ch chan<- Config) {
	h.listenerMu.Lock()
	defer h.listenerMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notify(cfg Config) {
	h.listenerMu.RLock()
	defer h.listenerMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().
				Str(log.FieldEvent, "config.listener_skip").
				Msg("reload listener channel full, skipped")
		}
	}
}

func (h *Holder) logChanges(old, newCfg Config) {
	if old.Profile != newCfg.Profile {
		h.logger.Info().Str("old", old.Profile).Str("new", newCfg.Profile).
			Msg("config changed: profile")
	}
	if old.Rooms != newCfg.Rooms {
		h.logger.Info().Int("old", old.Rooms).Int("new", newCfg.Rooms).
			Msg("config changed: rooms")
	}
	if old.Duration != newCfg.Duration {
		h.logger.Info().
			Stringer("old", old.Duration.Std()).
			Stringer("new", newCfg.Duration.Std()).
			Msg("config changed: duration")
	}
	if old.Chaos != newCfg.Chaos {
		h.logger.Info().
			Float64("transientRate", newCfg.Chaos.TransientRate).
			Float64("terminalRate", newCfg.Chaos.TerminalRate).
			Float64("dropRate", newCfg.Chaos.DropRate).
			Msg("config changed: chaos")
	}
}
