// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package zwave

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/soothill/zwave-prometheus-exporter/mqtt"
	"github.com/soothill/zwave-prometheus-exporter/pkg/logger"
	"github.com/soothill/zwave-prometheus-exporter/pkg/metrics"
)

// Broker is the subset of the MQTT client the gateway source needs.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	HealthCheck(ctx context.Context) error
}

// Values of the mqtt_messages_total kind label.
const (
	messageValue       = "value"
	messageNodeStatus  = "node_status"
	messageNodeRemoved = "node_removed"
	messageIgnored     = "ignored"
	messageInvalid     = "invalid"
)

// ErrAlreadySubscribed is returned by Subscribe when handlers are already registered.
var ErrAlreadySubscribed = errors.New("zwave: handlers already subscribed")

// Source turns gateway MQTT traffic into device events.
type Source struct {
	broker    Broker
	topics    Topics
	qos       byte
	directory *Directory
	log       zerolog.Logger

	mu       sync.RWMutex
	handlers *Handlers
}

// NewSource creates an event source. directory may be nil; when set it
// supplies node names for status events and is kept in step with node
// removals.
func NewSource(broker Broker, topics Topics, qos byte, directory *Directory) *Source {
	return &Source{
		broker:    broker,
		topics:    topics,
		qos:       qos,
		directory: directory,
		log:       logger.Component("zwave"),
	}
}

// Subscribe registers h and subscribes to every gateway topic.
func (s *Source) Subscribe(h Handlers) error {
	s.mu.Lock()
	if s.handlers != nil {
		s.mu.Unlock()
		return ErrAlreadySubscribed
	}
	s.handlers = &h
	s.mu.Unlock()

	if err := s.broker.Subscribe(s.topics.All(), s.qos, s.dispatch); err != nil {
		s.mu.Lock()
		s.handlers = nil
		s.mu.Unlock()
		return err
	}

	s.log.Info().Str("topic", s.topics.All()).Msg("Subscribed to gateway events")
	return nil
}

// Unsubscribe removes the registered handlers. Messages that arrive
// afterwards are dropped even if the broker call fails.
func (s *Source) Unsubscribe() error {
	s.mu.Lock()
	if s.handlers == nil {
		s.mu.Unlock()
		return nil
	}
	s.handlers = nil
	s.mu.Unlock()

	return s.broker.Unsubscribe(s.topics.All())
}

// HealthCheck reports the broker connection state.
func (s *Source) HealthCheck(ctx context.Context) error {
	return s.broker.HealthCheck(ctx)
}

func (s *Source) current() *Handlers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers
}

// dispatch routes one MQTT message to the matching handler.
func (s *Source) dispatch(topic string, payload []byte) error {
	h := s.current()
	if h == nil {
		return nil
	}

	kind, location, name := s.topics.Classify(topic)
	switch kind {
	case TopicNodeRemoved:
		node, err := DecodeNodeRemoved(payload)
		if err != nil {
			metrics.MQTTMessagesTotal.WithLabelValues(messageInvalid).Inc()
			return err
		}
		metrics.MQTTMessagesTotal.WithLabelValues(messageNodeRemoved).Inc()
		if s.directory != nil {
			s.directory.Remove(node.ID)
		}
		if h.NodeRemoved != nil {
			h.NodeRemoved(node)
		}
		return nil

	case TopicNodeStatus:
		node, err := DecodeNodeStatus(payload, location, name)
		if err == nil {
			metrics.MQTTMessagesTotal.WithLabelValues(messageNodeStatus).Inc()
			s.enrich(&node)
			if h.NodeStatus != nil {
				h.NodeStatus(node)
			}
			return nil
		}
		// A value whose property is literally "status" uses the same topic shape.
		return s.dispatchValue(h, payload)

	case TopicValue:
		return s.dispatchValue(h, payload)

	default:
		metrics.MQTTMessagesTotal.WithLabelValues(messageIgnored).Inc()
		return nil
	}
}

func (s *Source) dispatchValue(h *Handlers, payload []byte) error {
	v, err := DecodeValueChanged(payload)
	if err != nil {
		// Plain payload types and retained non-ValueID topics are not ours.
		metrics.MQTTMessagesTotal.WithLabelValues(messageIgnored).Inc()
		s.log.Debug().Err(err).Msg("Ignoring non-ValueID payload")
		return nil
	}

	metrics.MQTTMessagesTotal.WithLabelValues(messageValue).Inc()
	if h.ValueChanged != nil {
		h.ValueChanged(v)
	}
	return nil
}

// enrich replaces topic-derived name and location with directory values.
func (s *Source) enrich(node *Node) {
	if s.directory == nil {
		return
	}
	if info, ok := s.directory.Lookup(node.ID); ok {
		if info.Name != "" {
			node.Name = info.Name
		}
		if info.Location != "" {
			node.Location = info.Location
		}
	}
}
