// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics about the exporter itself.
//
// These live on the default registerer. The device series produced from
// Z-Wave events are kept in a separate registry (see package registry) so
// their names can never collide with these.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "zwave_exporter"

// Event kinds used as the "kind" label.
const (
	KindValueChanged = "value_changed"
	KindNodeStatus   = "node_status"
	KindNodeRemoved  = "node_removed"
)

var (
	// EventsTotal counts device events received by the exporter, by kind
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Total number of device events received",
	}, []string{"kind"})

	// EventsSkipped counts value events that produced no observation, by reason
	EventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_skipped_total",
		Help:      "Total number of value events skipped",
	}, []string{"reason"})

	// ObservationsTotal counts gauge values written
	ObservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_total",
		Help:      "Total number of gauge values written",
	})

	// SeriesRegistered tracks the number of device series in the registry
	SeriesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "series",
		Help:      "Number of device metric series registered",
	})

	// NodesCached tracks the number of nodes in the metadata cache
	NodesCached = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "nodes_cached",
		Help:      "Number of nodes held in the metadata cache",
	})

	// ScrapesTotal counts scrape requests served
	ScrapesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrapes_total",
		Help:      "Total number of scrape requests served",
	})

	// ScrapeErrors counts scrapes answered with an empty body
	ScrapeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrape_errors_total",
		Help:      "Total number of scrapes that could not render the registry",
	})

	// ScrapeDuration tracks how long rendering the exposition takes
	ScrapeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scrape_duration_seconds",
		Help:      "Duration of exposition rendering in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	// MQTTMessagesTotal counts broker messages handled by the event source, by kind
	MQTTMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_messages_total",
		Help:      "Total number of MQTT messages handled by the event source",
	}, []string{"kind"})

	// DirectoryRefreshes counts node directory refresh attempts, by result
	DirectoryRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "directory_refreshes_total",
		Help:      "Total number of node directory refresh attempts",
	}, []string{"result"})
)
