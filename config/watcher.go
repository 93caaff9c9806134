// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/soothill/zwave-prometheus-exporter/pkg/logger"
)

// Reload is the outcome of one reload attempt. Exactly one of Config and
// Error is set.
type Reload struct {
	Config *Config
	Error  error
}

// Watcher reloads the configuration file on SIGHUP or Trigger. Each
// attempt is checked against the schema before it is parsed.
type Watcher struct {
	path       string
	reloads    chan<- Reload
	reloadChan chan os.Signal
	cancelFunc context.CancelFunc
}

// NewWatcher creates a new configuration watcher that publishes every
// reload attempt on reloads.
func NewWatcher(path string, reloads chan<- Reload) *Watcher {
	return &Watcher{
		path:       path,
		reloads:    reloads,
		reloadChan: make(chan os.Signal, 1),
	}
}

// Start begins watching for SIGHUP signals to trigger a configuration reload.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancelFunc = context.WithCancel(ctx)
	signal.Notify(w.reloadChan, syscall.SIGHUP)

	go w.watch(ctx)
}

// Trigger requests a reload as if SIGHUP had been received.
func (w *Watcher) Trigger() {
	select {
	case w.reloadChan <- syscall.SIGHUP:
	default:
	}
}

// Stop stops the configuration watcher.
func (w *Watcher) Stop() {
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	signal.Stop(w.reloadChan)
}

func (w *Watcher) watch(ctx context.Context) {
	log := logger.Component("config")
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.reloadChan:
			log.Info().Str("path", w.path).Msg("Reloading configuration")
			cfg, err := LoadStrict(w.path)
			if err != nil {
				log.Error().Err(err).Msg("Failed to reload configuration")
			}

			select {
			case w.reloads <- Reload{Config: cfg, Error: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}
