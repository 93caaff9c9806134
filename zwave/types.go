// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package zwave reads zwave-js-ui gateway events from MQTT.
//
// The gateway publishes every value update as a ValueID JSON payload under
// its topic prefix, node status changes on a per-node status topic, and
// gateway events (such as node removal) under _EVENTS. A node directory
// with names and locations is fetched through the gateway's MQTT API.
package zwave

import "strconv"

// ValueChanged is a ValueID payload as published by zwave-js-ui.
type ValueChanged struct {
	ID               string `json:"id"`
	NodeID           int    `json:"nodeId"`
	CommandClass     int    `json:"commandClass"`
	CommandClassName string `json:"commandClassName"`
	Endpoint         *int   `json:"endpoint,omitempty"`
	Property         Key    `json:"property"`
	PropertyName     string `json:"propertyName"`
	PropertyKey      Key    `json:"propertyKey"`
	Label            string `json:"label"`
	Type             string `json:"type"`
	Value            Value  `json:"value"`
	NodeName         string `json:"nodeName"`
	NodeLocation     string `json:"nodeLocation"`
}

// EndpointLabel renders the endpoint in decimal, or "" when absent.
func (v ValueChanged) EndpointLabel() string {
	if v.Endpoint == nil {
		return ""
	}
	return strconv.Itoa(*v.Endpoint)
}

// PropertyLabel returns the property name, falling back to the raw property.
func (v ValueChanged) PropertyLabel() string {
	if v.PropertyName != "" {
		return v.PropertyName
	}
	return string(v.Property)
}

// Node is a node status or node removed event.
type Node struct {
	ID       int
	Name     string
	Location string
	Status   string
}

// NodeInfo is a node directory entry.
type NodeInfo struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Location string `json:"loc"`
	Status   string `json:"status"`
}

// Node status values reported by zwave-js-ui.
const (
	StatusAlive  = "Alive"
	StatusAsleep = "Asleep"
	StatusDead   = "Dead"
	StatusAwake  = "Awake"
)

// Handlers are the callbacks an event source invokes. Nil handlers are
// skipped. A source invokes them one at a time.
type Handlers struct {
	ValueChanged func(ValueChanged)
	NodeStatus   func(Node)
	NodeRemoved  func(Node)
}
