// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package zwave

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	apperrors "github.com/soothill/zwave-prometheus-exporter/pkg/errors"
	"github.com/soothill/zwave-prometheus-exporter/pkg/logger"
	"github.com/soothill/zwave-prometheus-exporter/pkg/metrics"
)

const (
	defaultRequestTimeout = 10 * time.Second

	// Consecutive failed refreshes before the breaker opens.
	breakerTripAfter = 3
	breakerCooldown  = time.Minute
)

// Directory holds node names and locations fetched from the gateway's
// getNodes API and kept current from node events.
type Directory struct {
	broker  Broker
	topics  Topics
	qos     byte
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger

	mu    sync.RWMutex
	nodes map[int]NodeInfo

	waitMu  sync.Mutex
	waiters []chan error
}

// NewDirectory creates an empty directory for the gateway described by topics.
// A zero timeout selects the default of 10s.
func NewDirectory(broker Broker, topics Topics, qos byte, timeout time.Duration) *Directory {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	d := &Directory{
		broker:  broker,
		topics:  topics,
		qos:     qos,
		timeout: timeout,
		log:     logger.Component("directory"),
		nodes:   make(map[int]NodeInfo),
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "zwave-directory",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Directory circuit breaker state changed")
		},
	})
	return d
}

// Start subscribes to getNodes responses.
func (d *Directory) Start() error {
	return d.broker.Subscribe(d.topics.NodesResponse(), d.qos, d.handleNodesResponse)
}

// Stop unsubscribes from getNodes responses and fails pending refreshes.
func (d *Directory) Stop() error {
	d.notify(context.Canceled)
	return d.broker.Unsubscribe(d.topics.NodesResponse())
}

// Lookup returns the directory entry for nodeID.
func (d *Directory) Lookup(nodeID int) (NodeInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.nodes[nodeID]
	return info, ok
}

// Update adds or replaces an entry.
func (d *Directory) Update(info NodeInfo) {
	if info.ID <= 0 {
		return
	}
	d.mu.Lock()
	d.nodes[info.ID] = info
	d.mu.Unlock()
}

// Remove drops an entry.
func (d *Directory) Remove(nodeID int) {
	d.mu.Lock()
	delete(d.nodes, nodeID)
	d.mu.Unlock()
}

// Len returns the number of known nodes.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes)
}

// Nodes returns every entry ordered by node id.
func (d *Directory) Nodes() []NodeInfo {
	d.mu.RLock()
	nodes := make([]NodeInfo, 0, len(d.nodes))
	for _, info := range d.nodes {
		nodes = append(nodes, info)
	}
	d.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Refresh requests the node list from the gateway and waits for the answer.
// After repeated failures the breaker rejects calls for a cooldown period
// with an error wrapping errors.ErrCircuitOpen.
func (d *Directory) Refresh(ctx context.Context) error {
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.refresh(ctx)
	})

	switch {
	case err == nil:
		metrics.DirectoryRefreshes.WithLabelValues("ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.DirectoryRefreshes.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %w", apperrors.ErrCircuitOpen, err)
	default:
		metrics.DirectoryRefreshes.WithLabelValues("error").Inc()
	}
	return err
}

func (d *Directory) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	d.waitMu.Lock()
	d.waiters = append(d.waiters, done)
	d.waitMu.Unlock()

	if err := d.broker.Publish(d.topics.NodesRequest(), d.qos, false, nodesRequest); err != nil {
		d.dropWaiter(done)
		return apperrors.NewTransportError("getNodes", d.topics.NodesRequest(), err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		d.dropWaiter(done)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("getNodes: %w after %v", apperrors.ErrTimeout, d.timeout)
		}
		return ctx.Err()
	}
}

func (d *Directory) dropWaiter(done chan error) {
	d.waitMu.Lock()
	defer d.waitMu.Unlock()
	for i, w := range d.waiters {
		if w == done {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			return
		}
	}
}

func (d *Directory) notify(err error) {
	d.waitMu.Lock()
	waiters := d.waiters
	d.waiters = nil
	d.waitMu.Unlock()

	for _, w := range waiters {
		w <- err
	}
}

// handleNodesResponse replaces the directory with the gateway's node list.
func (d *Directory) handleNodesResponse(_ string, payload []byte) error {
	nodes, err := DecodeNodesResponse(payload)
	if err != nil {
		d.notify(err)
		return err
	}

	fresh := make(map[int]NodeInfo, len(nodes))
	for _, n := range nodes {
		if n.ID > 0 {
			fresh[n.ID] = n
		}
	}

	d.mu.Lock()
	d.nodes = fresh
	d.mu.Unlock()

	d.log.Debug().Int("nodes", len(fresh)).Msg("Node directory refreshed")
	d.notify(nil)
	return nil
}

// Run refreshes the directory immediately and then every interval until
// ctx is cancelled. A non-positive interval refreshes once.
func (d *Directory) Run(ctx context.Context, interval time.Duration) {
	d.refreshAndLog(ctx)
	d.Tick(ctx, interval)
}

// Tick refreshes the directory every interval until ctx is cancelled,
// waiting one interval before the first refresh. A non-positive interval
// returns at once.
func (d *Directory) Tick(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refreshAndLog(ctx)
		}
	}
}

func (d *Directory) refreshAndLog(ctx context.Context) {
	if err := d.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.log.Warn().Err(err).Msg("Failed to refresh node directory")
		return
	}
	d.log.Info().Int("nodes", d.Len()).Msg("Node directory loaded")
}
