// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package zwave

import (
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/soothill/zwave-prometheus-exporter/pkg/errors"
)

var (
	errNotValueID  = errors.New("payload is not a ValueID")
	errNotStatus   = errors.New("payload is not a node status")
	errEmptyEvent  = errors.New("event carries no node")
	errAPIResponse = errors.New("gateway API call failed")
)

// DecodeValueChanged decodes a ValueID payload. Payloads without a node id
// or command class are rejected.
func DecodeValueChanged(payload []byte) (ValueChanged, error) {
	var v ValueChanged
	if err := json.Unmarshal(payload, &v); err != nil {
		return ValueChanged{}, fmt.Errorf("decode value payload: %w", err)
	}
	if v.NodeID <= 0 {
		return ValueChanged{}, invalid("nodeId", v.NodeID, errNotValueID)
	}
	if v.CommandClass == 0 {
		return ValueChanged{}, invalid("commandClass", v.CommandClass, errNotValueID)
	}
	return v, nil
}

// invalid reports a missing or non-positive identifier, wrapping cause.
func invalid(field string, value int, cause error) error {
	return &apperrors.ValidationError{Field: field, Value: value, Reason: "missing or not positive", Details: cause}
}

type statusPayload struct {
	NodeID int    `json:"nodeId"`
	Status string `json:"status"`
}

// DecodeNodeStatus decodes a node status payload. location and name come
// from the topic.
func DecodeNodeStatus(payload []byte, location, name string) (Node, error) {
	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Node{}, fmt.Errorf("decode status payload: %w", err)
	}
	if p.NodeID <= 0 {
		return Node{}, invalid("nodeId", p.NodeID, errNotStatus)
	}
	if p.Status == "" {
		return Node{}, errNotStatus
	}
	return Node{ID: p.NodeID, Name: name, Location: location, Status: p.Status}, nil
}

type eventPayload struct {
	Data []json.RawMessage `json:"data"`
}

// DecodeNodeRemoved decodes a node_removed gateway event.
func DecodeNodeRemoved(payload []byte) (Node, error) {
	var ev eventPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Node{}, fmt.Errorf("decode node event: %w", err)
	}
	if len(ev.Data) == 0 {
		return Node{}, errEmptyEvent
	}

	var info NodeInfo
	if err := json.Unmarshal(ev.Data[0], &info); err != nil {
		return Node{}, fmt.Errorf("decode removed node: %w", err)
	}
	if info.ID <= 0 {
		return Node{}, invalid("id", info.ID, errEmptyEvent)
	}
	return Node(info), nil
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// DecodeNodesResponse decodes a getNodes API response.
func DecodeNodesResponse(payload []byte) ([]NodeInfo, error) {
	var resp apiResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode getNodes response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", errAPIResponse, resp.Message)
	}

	var nodes []NodeInfo
	if err := json.Unmarshal(resp.Result, &nodes); err != nil {
		return nil, fmt.Errorf("decode getNodes result: %w", err)
	}
	return nodes, nil
}

// nodesRequest is the getNodes API call body.
var nodesRequest = []byte(`{"args":[]}`)
