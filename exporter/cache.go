// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package exporter

import (
	"sync"

	"github.com/soothill/zwave-prometheus-exporter/pkg/metrics"
)

// NodeMetadata is what the exporter remembers about a node.
type NodeMetadata struct {
	Name     string
	Location string
	Status   string
}

// NodeCache maps node ids to metadata. Name and location are resolved once,
// on first sight of a node, and never refreshed; status is overwritten on
// every status event.
type NodeCache struct {
	mu    sync.Mutex
	nodes map[int]NodeMetadata
}

// NewNodeCache creates an empty cache.
func NewNodeCache() *NodeCache {
	return &NodeCache{nodes: make(map[int]NodeMetadata)}
}

// GetOrPopulate returns the entry for nodeID, calling lookup to create it
// if absent. lookup runs at most once per node id.
func (c *NodeCache) GetOrPopulate(nodeID int, lookup func() NodeMetadata) NodeMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getOrPopulateLocked(nodeID, lookup)
}

func (c *NodeCache) getOrPopulateLocked(nodeID int, lookup func() NodeMetadata) NodeMetadata {
	if meta, ok := c.nodes[nodeID]; ok {
		return meta
	}

	var meta NodeMetadata
	if lookup != nil {
		meta = lookup()
	}
	c.nodes[nodeID] = meta
	metrics.NodesCached.Set(float64(len(c.nodes)))
	return meta
}

// SetStatus records status for nodeID, populating the entry through lookup
// first if needed, and returns the updated entry.
func (c *NodeCache) SetStatus(nodeID int, status string, lookup func() NodeMetadata) NodeMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta := c.getOrPopulateLocked(nodeID, lookup)
	meta.Status = status
	c.nodes[nodeID] = meta
	return meta
}

// Forget drops the entry for nodeID so a re-included node is resolved again.
func (c *NodeCache) Forget(nodeID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.nodes, nodeID)
	metrics.NodesCached.Set(float64(len(c.nodes)))
}

// Len returns the number of cached nodes.
func (c *NodeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

// Snapshot returns a copy of every entry.
func (c *NodeCache) Snapshot() map[int]NodeMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int]NodeMetadata, len(c.nodes))
	for id, meta := range c.nodes {
		out[id] = meta
	}
	return out
}
