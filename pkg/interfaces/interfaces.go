// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package interfaces defines the contracts between the metrics engine and
// its collaborators, so each side can be replaced by a fake in tests.
package interfaces

import (
	"context"
	"io"

	"github.com/soothill/zwave-prometheus-exporter/zwave"
)

// EventSource delivers device events to registered handlers.
type EventSource interface {
	// Subscribe registers the handlers. Handlers are invoked one at a time.
	Subscribe(h zwave.Handlers) error

	// Unsubscribe removes every handler registered by Subscribe
	Unsubscribe() error
}

// NodeDirectory resolves live node names and locations.
type NodeDirectory interface {
	// Lookup returns the entry for nodeID, or false when the node is unknown
	Lookup(nodeID int) (zwave.NodeInfo, bool)
}

// Renderer serializes the current metric state in the text exposition format.
type Renderer interface {
	RenderExposition() (string, error)
	WriteExposition(w io.Writer) error
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
