// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package zwave

import "strings"

// Topic segments used by the zwave-js-ui gateway.
const (
	eventsSegment  = "_EVENTS"
	clientsSegment = "_CLIENTS"
	gatewayPrefix  = "ZWAVE_GATEWAY-"
	statusSegment  = "status"
)

// TopicKind classifies a topic under the gateway prefix.
type TopicKind int

const (
	// TopicUnknown is anything the exporter does not consume.
	TopicUnknown TopicKind = iota
	// TopicValue is a per-value topic carrying a ValueID payload.
	TopicValue
	// TopicNodeStatus is a node's status topic.
	TopicNodeStatus
	// TopicNodeRemoved is the gateway's node_removed event.
	TopicNodeRemoved
	// TopicNodesResponse is the getNodes API response.
	TopicNodesResponse
)

// Topics builds and parses zwave-js-ui topics for one gateway.
type Topics struct {
	// Prefix is the gateway's MQTT prefix, e.g. "zwave". May contain '/'.
	Prefix string
	// Gateway is the gateway name configured in zwave-js-ui.
	Gateway string
}

// All is the wildcard subscription covering every gateway topic.
func (t Topics) All() string {
	return t.Prefix + "/#"
}

func (t Topics) client() string {
	return t.Prefix + "/" + clientsSegment + "/" + gatewayPrefix + t.Gateway
}

// NodeRemoved is the topic of the node_removed gateway event.
func (t Topics) NodeRemoved() string {
	return t.Prefix + "/" + eventsSegment + "/" + gatewayPrefix + t.Gateway + "/node/node_removed"
}

// NodesRequest is where getNodes API calls are published.
func (t Topics) NodesRequest() string {
	return t.NodesResponse() + "/set"
}

// NodesResponse is where the gateway answers getNodes API calls.
func (t Topics) NodesResponse() string {
	return t.client() + "/api/getNodes"
}

// Classify returns the kind of topic and, for node status topics, the
// location and name segments. The location is "" when the gateway is
// configured to omit it.
func (t Topics) Classify(topic string) (kind TopicKind, location, name string) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok || rest == "" {
		return TopicUnknown, "", ""
	}

	switch topic {
	case t.NodeRemoved():
		return TopicNodeRemoved, "", ""
	case t.NodesResponse():
		return TopicNodesResponse, "", ""
	}

	segments := strings.Split(rest, "/")
	if segments[0] == eventsSegment || segments[0] == clientsSegment {
		return TopicUnknown, "", ""
	}

	if segments[len(segments)-1] == statusSegment {
		switch len(segments) {
		case 2:
			return TopicNodeStatus, "", segments[0]
		case 3:
			return TopicNodeStatus, segments[0], segments[1]
		}
	}

	return TopicValue, "", ""
}
