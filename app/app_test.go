// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/soothill/zwave-prometheus-exporter/config"
	"github.com/soothill/zwave-prometheus-exporter/exporter"
	"github.com/soothill/zwave-prometheus-exporter/mqtt"
	"github.com/soothill/zwave-prometheus-exporter/pkg/logger"
	"github.com/soothill/zwave-prometheus-exporter/server"
	"github.com/soothill/zwave-prometheus-exporter/zwave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopBroker struct{}

func (nopBroker) Subscribe(string, byte, mqtt.MessageHandler) error { return nil }
func (nopBroker) Unsubscribe(...string) error                       { return nil }
func (nopBroker) Publish(string, byte, bool, []byte) error          { return nil }
func (nopBroker) HealthCheck(context.Context) error                 { return nil }

func newTestApp(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	topics := zwave.Topics{Prefix: cfg.MQTT.Prefix, Gateway: cfg.MQTT.GatewayName}
	return &App{
		cfg:       cfg,
		directory: zwave.NewDirectory(nopBroker{}, topics, 0, 100*time.Millisecond),
		log:       zerolog.Nop(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func TestUpdateConfigAppliesLogLevel(t *testing.T) {
	logger.Initialize("info")
	a := newTestApp(config.Default())
	defer a.Shutdown()

	next := config.Default()
	next.Logging.Level = "debug"
	a.UpdateConfig(next)

	assert.Equal(t, zerolog.DebugLevel, logger.Level())
	assert.Same(t, next, a.config())
	logger.SetLevel("info")
}

func TestUpdateConfigRestartsDirectoryRefresh(t *testing.T) {
	a := newTestApp(config.Default())

	next := config.Default()
	next.Directory.RefreshInterval = time.Minute
	a.UpdateConfig(next)

	a.dirMu.Lock()
	running := a.dirCancel != nil
	a.dirMu.Unlock()
	assert.True(t, running, "a changed interval should start a refresh loop")

	a.Shutdown()
	a.Shutdown()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh loop did not stop on shutdown")
	}
}

func TestUpdateConfigUnchangedIntervalKeepsLoop(t *testing.T) {
	a := newTestApp(config.Default())
	defer a.Shutdown()

	a.UpdateConfig(config.Default())

	a.dirMu.Lock()
	defer a.dirMu.Unlock()
	assert.Nil(t, a.dirCancel)
}

func TestDumpGoroutineStackTraces(t *testing.T) {
	logger.Initialize("info")
	DumpGoroutineStackTraces()
}

// gatewayBroker answers getNodes synchronously and replays retained value
// messages the moment the gateway wildcard is subscribed, like a broker does.
type gatewayBroker struct {
	topics   zwave.Topics
	nodes    string
	retained map[string]string

	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
	calls    []string
}

func (b *gatewayBroker) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	b.mu.Lock()
	b.handlers[topic] = h
	b.calls = append(b.calls, "subscribe "+topic)
	b.mu.Unlock()

	if topic == b.topics.All() {
		for t, payload := range b.retained {
			_ = h(t, []byte(payload))
		}
	}
	return nil
}

func (b *gatewayBroker) Unsubscribe(...string) error { return nil }

func (b *gatewayBroker) Publish(topic string, _ byte, _ bool, _ []byte) error {
	b.mu.Lock()
	b.calls = append(b.calls, "publish "+topic)
	h := b.handlers[b.topics.NodesResponse()]
	b.mu.Unlock()

	if topic == b.topics.NodesRequest() && h != nil {
		_ = h(b.topics.NodesResponse(), []byte(b.nodes))
	}
	return nil
}

func (b *gatewayBroker) HealthCheck(context.Context) error { return nil }

func TestStartCollectingLoadsDirectoryBeforeValues(t *testing.T) {
	cfg := config.Default()
	topics := zwave.Topics{Prefix: cfg.MQTT.Prefix, Gateway: cfg.MQTT.GatewayName}
	broker := &gatewayBroker{
		topics:   topics,
		nodes:    `{"success":true,"result":[{"id":5,"name":"Kitchen Light","loc":"Kitchen"}]}`,
		handlers: make(map[string]mqtt.MessageHandler),
		retained: map[string]string{
			// No nodeName or nodeLocation in the payload.
			"zwave/Kitchen/Kitchen_Light/switch_binary/endpoint_0/targetValue": `{"id":"5-37-0-targetValue",
				"nodeId":5,"commandClass":37,"commandClassName":"Binary Switch","endpoint":0,
				"property":"targetValue","propertyName":"targetValue","type":"boolean","value":true}`,
		},
	}

	a := newTestApp(cfg)
	defer a.Shutdown()
	a.directory = zwave.NewDirectory(broker, topics, 0, time.Second)

	nop := zerolog.Nop()
	plugin, err := exporter.New(exporter.Context{
		Source:        zwave.NewSource(broker, topics, 0, a.directory),
		Directory:     a.directory,
		Logger:        &nop,
		Server:        server.Options{Host: "127.0.0.1", Port: 0, MetricPath: "/metrics"},
		ServerOptions: []server.Option{server.WithLogger(nop)},
	})
	require.NoError(t, err)
	a.plugin = plugin
	defer plugin.Destroy(context.Background())

	require.NoError(t, a.startCollecting())

	meta, ok := plugin.Cache().Snapshot()[5]
	require.True(t, ok, "retained value should have been observed")
	assert.Equal(t, "Kitchen Light", meta.Name)
	assert.Equal(t, "Kitchen", meta.Location)

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.Equal(t, []string{
		"subscribe " + topics.NodesResponse(),
		"publish " + topics.NodesRequest(),
		"subscribe " + topics.All(),
	}, broker.calls)
}

func TestStartCollectingContinuesWithoutDirectory(t *testing.T) {
	cfg := config.Default()
	topics := zwave.Topics{Prefix: cfg.MQTT.Prefix, Gateway: cfg.MQTT.GatewayName}

	a := newTestApp(cfg)
	defer a.Shutdown()
	// nopBroker never answers getNodes, so the refresh times out.
	a.directory = zwave.NewDirectory(nopBroker{}, topics, 0, 100*time.Millisecond)

	nop := zerolog.Nop()
	plugin, err := exporter.New(exporter.Context{
		Source:        zwave.NewSource(nopBroker{}, topics, 0, a.directory),
		Logger:        &nop,
		Server:        server.Options{Host: "127.0.0.1", Port: 0, MetricPath: "/metrics"},
		ServerOptions: []server.Option{server.WithLogger(nop)},
	})
	require.NoError(t, err)
	a.plugin = plugin
	defer plugin.Destroy(context.Background())

	assert.NoError(t, a.startCollecting())
	assert.True(t, plugin.Server().IsRunning())
}
