// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package app wires the broker connection, the zwave-js-ui event source,
// the exporter plugin and the mDNS advertiser into one process.
package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/soothill/zwave-prometheus-exporter/config"
	"github.com/soothill/zwave-prometheus-exporter/discovery"
	"github.com/soothill/zwave-prometheus-exporter/exporter"
	"github.com/soothill/zwave-prometheus-exporter/mqtt"
	"github.com/soothill/zwave-prometheus-exporter/pkg/logger"
	"github.com/soothill/zwave-prometheus-exporter/registry"
	"github.com/soothill/zwave-prometheus-exporter/server"
	"github.com/soothill/zwave-prometheus-exporter/zwave"
)

const (
	signalChannelSize = 1
	shutdownTimeout   = 5 * time.Second
	stackBufferSize   = 1024 * 1024
)

// Version is reported in the mDNS TXT record. Set at build time with
// -ldflags "-X github.com/soothill/zwave-prometheus-exporter/app.Version=...".
var Version = "dev"

// App represents the main application
type App struct {
	cfg   *config.Config
	cfgMu sync.RWMutex

	mqtt       *mqtt.Client
	directory  *zwave.Directory
	source     *zwave.Source
	plugin     *exporter.Plugin
	advertiser *discovery.Advertiser

	watcher *config.Watcher
	reloads chan config.Reload

	// dirCancel stops the running directory refresh loop.
	dirCancel context.CancelFunc
	dirMu     sync.Mutex

	log    zerolog.Logger
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New connects to the broker and builds every component. Nothing is
// subscribed or served until Run.
func New(cfg *config.Config, configPath string) (*App, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	topics := zwave.Topics{Prefix: cfg.MQTT.Prefix, Gateway: cfg.MQTT.GatewayName}
	qos := byte(cfg.MQTT.QoS)
	directory := zwave.NewDirectory(client, topics, qos, cfg.Directory.RequestTimeout)
	source := zwave.NewSource(client, topics, qos, directory)

	var regOpts []registry.Option
	if cfg.HTTP.SelfMetricsEnabled() {
		regOpts = append(regOpts, registry.WithGatherers(prometheus.DefaultGatherer))
	}

	log := logger.Component("exporter")
	plugin, err := exporter.New(exporter.Context{
		Source:    source,
		Directory: directory,
		Logger:    &log,
		Registry:  registry.New(regOpts...),
		Server: server.Options{
			Host:        cfg.HTTP.Host,
			Port:        cfg.HTTP.Port,
			MetricPath:  cfg.HTTP.MetricPath,
			ExitOnError: cfg.HTTP.ExitOnError,
		},
		ServerOptions: []server.Option{server.WithReadiness(source)},
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan config.Reload, 1)
	return &App{
		cfg:       cfg,
		mqtt:      client,
		directory: directory,
		source:    source,
		plugin:    plugin,
		watcher:   config.NewWatcher(configPath, reloads),
		reloads:   reloads,
		log:       logger.Component("app"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Run starts every component and blocks until Shutdown is called or an
// interrupt is received.
func (a *App) Run() error {
	ctx := a.ctx
	defer a.cancel()

	a.watcher.Start(ctx)
	defer a.watcher.Stop()

	if err := a.startCollecting(); err != nil {
		a.cleanup()
		return err
	}

	a.startAdvertiser()
	a.startDirectoryRefresh(a.config().Directory.RefreshInterval)
	a.startConfigWatcher()
	a.setupSignalHandler()

	a.log.Info().Str("version", Version).Msg("Z-Wave exporter running")
	<-ctx.Done()

	a.log.Info().Msg("Shutting down")
	a.cleanup()
	return nil
}

// Shutdown asks Run to return. Safe to call more than once.
func (a *App) Shutdown() {
	a.once.Do(func() {
		a.log.Info().Msg("Initiating graceful shutdown...")
		a.cancel()
	})
}

func (a *App) config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// startCollecting loads the node directory before subscribing to values.
// Retained values arrive as soon as the plugin subscribes and the cache
// keeps the first name it sees, so the directory has to be filled first.
func (a *App) startCollecting() error {
	if err := a.directory.Start(); err != nil {
		a.log.Warn().Err(err).Msg("Node directory unavailable, names come from payloads only")
	} else {
		a.loadDirectory()
	}
	return a.plugin.Start()
}

// loadDirectory runs one getNodes round trip, bounded by the request timeout.
func (a *App) loadDirectory() {
	if err := a.directory.Refresh(a.ctx); err != nil {
		a.log.Warn().Err(err).Msg("Initial node directory load failed, names come from payloads until the next refresh")
		return
	}
	a.log.Info().Int("nodes", a.directory.Len()).Msg("Node directory loaded")
}

// startAdvertiser announces the endpoint actually bound, if any.
func (a *App) startAdvertiser() {
	cfg := a.config()
	if !cfg.Advertise.Enabled {
		return
	}
	if !a.plugin.Server().IsRunning() {
		a.log.Warn().Msg("Not advertising: metrics endpoint is not running")
		return
	}

	_, portStr, err := net.SplitHostPort(a.plugin.Server().Addr())
	if err != nil {
		a.log.Warn().Err(err).Msg("Not advertising: cannot determine listen port")
		return
	}
	port, _ := strconv.Atoi(portStr)

	a.advertiser = discovery.NewAdvertiser(cfg.Advertise, port, cfg.HTTP.MetricPath, Version)
	if err := a.advertiser.Start(); err != nil {
		a.log.Warn().Err(err).Msg("mDNS advertisement failed")
	}
}

// startDirectoryRefresh (re)starts the periodic getNodes refresh. The
// first refresh happens one interval from now.
func (a *App) startDirectoryRefresh(interval time.Duration) {
	a.dirMu.Lock()
	defer a.dirMu.Unlock()

	if a.dirCancel != nil {
		a.dirCancel()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.dirCancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.directory.Tick(ctx, interval)
	}()
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			a.Shutdown()
		case <-a.ctx.Done():
		}
	}()
}

// startConfigWatcher applies configuration reloads until shutdown.
func (a *App) startConfigWatcher() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				return
			case reloaded := <-a.reloads:
				if reloaded.Error != nil {
					a.log.Error().Err(reloaded.Error).Msg("Keeping previous configuration")
					continue
				}
				a.UpdateConfig(reloaded.Config)
			}
		}
	}()
}

// UpdateConfig applies the settings that can change at runtime: log level
// and directory refresh interval. Broker and listener settings need a restart.
func (a *App) UpdateConfig(newCfg *config.Config) {
	a.cfgMu.Lock()
	old := a.cfg
	a.cfg = newCfg
	a.cfgMu.Unlock()

	if newCfg.Logging.Level != old.Logging.Level {
		logger.SetLevel(newCfg.Logging.Level)
		a.log.Info().Str("level", newCfg.Logging.Level).Msg("Log level updated")
	}
	if newCfg.Directory.RefreshInterval != old.Directory.RefreshInterval {
		a.startDirectoryRefresh(newCfg.Directory.RefreshInterval)
		a.log.Info().Dur("refresh_interval", newCfg.Directory.RefreshInterval).Msg("Directory refresh interval updated")
	}
	if newCfg.MQTT != old.MQTT || newCfg.HTTP.Addr() != old.HTTP.Addr() || newCfg.HTTP.MetricPath != old.HTTP.MetricPath {
		a.log.Warn().Msg("Broker and listener changes take effect after a restart")
	}

	a.log.Info().Msg("Application configuration updated")
}

// ReloadConfig rereads the configuration file as if SIGHUP was received.
func (a *App) ReloadConfig() {
	a.watcher.Trigger()
}

// cleanup stops every component and waits for goroutines to finish.
func (a *App) cleanup() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if a.advertiser != nil {
		a.advertiser.Stop()
	}
	a.plugin.Destroy(shutdownCtx)
	if err := a.directory.Stop(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to stop node directory")
	}
	if err := a.mqtt.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close MQTT connection")
	}

	a.log.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()
	a.log.Info().Msg("All goroutines finished, exiting")
}

// Plugin returns the exporter plugin.
func (a *App) Plugin() *exporter.Plugin { return a.plugin }

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	cfg := a.config()
	a.log.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	a.log.Info().
		Str("broker", cfg.MQTT.Broker.Host).
		Int("port", cfg.MQTT.Broker.Port).
		Bool("connected", a.mqtt.IsConnected()).
		Int("subscriptions", a.mqtt.SubscriptionCount()).
		Msg("MQTT state")

	for _, node := range a.directory.Nodes() {
		a.log.Info().
			Int("node_id", node.ID).
			Str("name", node.Name).
			Str("location", node.Location).
			Str("status", node.Status).
			Msg("Directory node")
	}

	cache := a.plugin.Cache().Snapshot()
	a.log.Info().
		Int("directory_nodes", a.directory.Len()).
		Int("cached_nodes", len(cache)).
		Msg("Node state")

	srv := a.plugin.Server()
	a.log.Info().
		Bool("running", srv.IsRunning()).
		Str("addr", srv.Addr()).
		Str("path", srv.MetricPath()).
		Bool("advertising", a.advertiser != nil && a.advertiser.IsAdvertising()).
		Msg("Metrics endpoint state")

	reg := a.plugin.Registry()
	a.log.Info().
		Int("series", reg.Len()).
		Strs("names", reg.Names()).
		Msg("Registry state")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	a.log.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	a.log.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, stackBufferSize)
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}
