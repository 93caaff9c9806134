// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package zwave

import (
	"context"
	"strings"
	"sync"

	"github.com/soothill/zwave-prometheus-exporter/mqtt"
)

// fakeBroker records subscriptions and publishes, and delivers messages
// to handlers whose filter matches.
type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []string
	onPublish func(topic string, payload []byte)
	subErr    error
	pubErr    error
	healthErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if b.subErr != nil {
		return b.subErr
	}
	b.mu.Lock()
	b.handlers[topic] = handler
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.handlers, t)
	}
	return nil
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload []byte) error {
	if b.pubErr != nil {
		return b.pubErr
	}
	b.mu.Lock()
	b.published = append(b.published, topic)
	hook := b.onPublish
	b.mu.Unlock()
	if hook != nil {
		hook(topic, payload)
	}
	return nil
}

func (b *fakeBroker) HealthCheck(context.Context) error {
	return b.healthErr
}

func (b *fakeBroker) subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[topic]
	return ok
}

// deliver invokes every handler whose filter matches topic.
func (b *fakeBroker) deliver(topic string, payload string) {
	b.mu.Lock()
	var matched []mqtt.MessageHandler
	for filter, h := range b.handlers {
		if topicMatches(filter, topic) {
			matched = append(matched, h)
		}
	}
	b.mu.Unlock()

	for _, h := range matched {
		_ = h(topic, []byte(payload))
	}
}

func topicMatches(filter, topic string) bool {
	if prefix, ok := strings.CutSuffix(filter, "/#"); ok {
		return topic == prefix || strings.HasPrefix(topic, prefix+"/")
	}
	return filter == topic
}
