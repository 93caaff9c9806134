// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package exporter turns Z-Wave device events into Prometheus gauges.
//
// A Plugin subscribes to an event source, classifies every value event,
// writes the accepted ones into a registry of dynamically created gauge
// series and serves that registry over HTTP. Node status events are encoded
// onto the reserved zjui_node_status series.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	apperrors "github.com/soothill/zwave-prometheus-exporter/pkg/errors"
	"github.com/soothill/zwave-prometheus-exporter/pkg/interfaces"
	"github.com/soothill/zwave-prometheus-exporter/pkg/logger"
	"github.com/soothill/zwave-prometheus-exporter/pkg/metrics"
	"github.com/soothill/zwave-prometheus-exporter/registry"
	"github.com/soothill/zwave-prometheus-exporter/server"
	"github.com/soothill/zwave-prometheus-exporter/zwave"
)

// ErrNoSource is returned by New when the context carries no event source.
var ErrNoSource = errors.New("exporter: event source is required")

// Context is what the host hands the plugin at init.
type Context struct {
	// Source delivers device events. Required.
	Source interfaces.EventSource
	// Directory resolves node names and locations on first sight. Optional.
	Directory interfaces.NodeDirectory
	// Logger defaults to the "exporter" component logger.
	Logger *zerolog.Logger
	// Registry defaults to a fresh registry.
	Registry *registry.Registry

	Server        server.Options
	ServerOptions []server.Option

	// ResetOnDestroy unregisters every series on Destroy.
	ResetOnDestroy bool
}

// Plugin owns the registry, node cache and HTTP shell of one exporter instance.
type Plugin struct {
	source         interfaces.EventSource
	registry       *registry.Registry
	cache          *NodeCache
	classifier     *Classifier
	server         *server.Server
	log            zerolog.Logger
	resetOnDestroy bool

	// lifecycle guards started; events serialises the handlers.
	lifecycle sync.Mutex
	started   bool
	events    sync.Mutex
}

// New builds a stopped plugin.
func New(pctx Context) (*Plugin, error) {
	if pctx.Source == nil {
		return nil, ErrNoSource
	}

	log := logger.Component("exporter")
	if pctx.Logger != nil {
		log = *pctx.Logger
	}

	reg := pctx.Registry
	if reg == nil {
		reg = registry.New()
	}

	opts := pctx.Server
	if opts == (server.Options{}) {
		opts = server.DefaultOptions()
	}

	cache := NewNodeCache()
	return &Plugin{
		source:         pctx.Source,
		registry:       reg,
		cache:          cache,
		classifier:     NewClassifier(cache, pctx.Directory),
		server:         server.New(reg, opts, pctx.ServerOptions...),
		log:            log,
		resetOnDestroy: pctx.ResetOnDestroy,
	}, nil
}

// Start brings up the HTTP shell and subscribes the event handlers. A shell
// that cannot listen leaves the plugin collecting without an endpoint.
func (p *Plugin) Start() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.started {
		return nil
	}

	if err := p.server.Start(); err != nil {
		p.log.Error().Err(err).Msg("Metrics endpoint unavailable, continuing without it")
	}

	err := p.source.Subscribe(zwave.Handlers{
		ValueChanged: p.HandleValueChanged,
		NodeStatus:   p.HandleNodeStatus,
		NodeRemoved:  p.HandleNodeRemoved,
	})
	if err != nil {
		p.server.Stop(context.Background())
		return fmt.Errorf("subscribe event handlers: %w", err)
	}

	p.started = true
	p.log.Info().Msg("Exporter started")
	return nil
}

// Destroy unsubscribes every handler and stops the HTTP shell, waiting for
// it to shut down. Errors are logged, never returned.
func (p *Plugin) Destroy(ctx context.Context) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if err := p.source.Unsubscribe(); err != nil {
		p.log.Error().Err(err).Msg("Failed to unsubscribe event handlers")
	}
	p.server.Stop(ctx)

	if p.resetOnDestroy {
		p.registry.Reset()
	}
	p.started = false
	p.log.Info().Msg("Exporter stopped")
}

// HandleValueChanged classifies ev and, when accepted, writes its gauge.
func (p *Plugin) HandleValueChanged(ev zwave.ValueChanged) {
	p.events.Lock()
	defer p.events.Unlock()

	metrics.EventsTotal.WithLabelValues(metrics.KindValueChanged).Inc()

	d := p.classifier.Classify(ev)
	if !d.Observe {
		metrics.EventsSkipped.WithLabelValues(string(d.Reason)).Inc()
		p.log.Debug().
			Str("id", ev.ID).
			Int("command_class", ev.CommandClass).
			Str("reason", string(d.Reason)).
			Msg("Skipping value")
		return
	}

	p.observe(ev.NodeID, d.Metric, d.Help, ValueLabelNames, d.Labels, d.Value)
}

// HandleNodeStatus writes the encoded status of node to zjui_node_status.
func (p *Plugin) HandleNodeStatus(node zwave.Node) {
	p.events.Lock()
	defer p.events.Unlock()

	metrics.EventsTotal.WithLabelValues(metrics.KindNodeStatus).Inc()
	if node.ID <= 0 {
		metrics.EventsSkipped.WithLabelValues(string(SkipMissingField)).Inc()
		return
	}

	meta := p.cache.SetStatus(node.ID, node.Status, func() NodeMetadata {
		return NodeMetadata{Name: node.Name, Location: node.Location}
	})
	p.log.Debug().
		Int("node_id", node.ID).
		Str("name", meta.Name).
		Str("location", meta.Location).
		Str("status", node.Status).
		Msg("Node status")

	labels := map[string]string{
		"nodeId":   strconv.Itoa(node.ID),
		"location": meta.Location,
		"name":     meta.Name,
	}
	p.observe(node.ID, NodeStatusMetric, NodeStatusHelp, StatusLabelNames, labels, StatusValue(node.Status))
}

// HandleNodeRemoved forgets the node's metadata. Its series are kept.
func (p *Plugin) HandleNodeRemoved(node zwave.Node) {
	p.events.Lock()
	defer p.events.Unlock()

	metrics.EventsTotal.WithLabelValues(metrics.KindNodeRemoved).Inc()
	p.cache.Forget(node.ID)
	p.log.Info().Int("node_id", node.ID).Str("name", node.Name).Msg("Node removed")
}

func (p *Plugin) observe(nodeID int, name, help string, labelNames []string, labels map[string]string, value float64) {
	series, err := p.registry.GetOrCreate(name, help, labelNames)
	if err == nil {
		err = series.Set(labels, value)
	}
	if err != nil {
		p.log.Error().Err(apperrors.NewEventError("set gauge", nodeID, err)).Str("metric", name).Msg("Dropping observation")
		return
	}

	metrics.ObservationsTotal.Inc()
	p.log.Debug().Str("metric", name).Interface("labels", labels).Float64("value", value).Msg("Registered value")
}

// Registry returns the plugin's series registry.
func (p *Plugin) Registry() *registry.Registry { return p.registry }

// Cache returns the node metadata cache.
func (p *Plugin) Cache() *NodeCache { return p.cache }

// Server returns the HTTP shell.
func (p *Plugin) Server() *server.Server { return p.server }
