// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package exporter

import (
	"testing"

	"github.com/soothill/zwave-prometheus-exporter/zwave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory map[int]zwave.NodeInfo

func (d fakeDirectory) Lookup(nodeID int) (zwave.NodeInfo, bool) {
	info, ok := d[nodeID]
	return info, ok
}

func intPtr(i int) *int { return &i }

func binarySwitch(value zwave.Value) zwave.ValueChanged {
	return zwave.ValueChanged{
		ID:               "5-37-0-targetValue",
		NodeID:           5,
		CommandClass:     37,
		CommandClassName: "Binary Switch",
		Endpoint:         intPtr(0),
		Property:         "targetValue",
		PropertyName:     "targetValue",
		Label:            "Target value",
		Type:             "boolean",
		Value:            value,
	}
}

func TestClassifyExcludedCommandClasses(t *testing.T) {
	c := NewClassifier(NewNodeCache(), nil)
	values := []zwave.Value{zwave.NumberValue(1), zwave.BoolValue(true), zwave.OtherValue(`"x"`)}

	for _, cc := range []int{112, 114, 134, 96} {
		for _, v := range values {
			ev := binarySwitch(v)
			ev.CommandClass = cc
			d := c.Classify(ev)
			assert.False(t, d.Observe, "command class %d", cc)
			assert.Equal(t, SkipExcludedCommandClass, d.Reason)
		}
	}
}

func TestClassifyCoercion(t *testing.T) {
	tests := []struct {
		name    string
		value   zwave.Value
		observe bool
		want    float64
	}{
		{"true", zwave.BoolValue(true), true, 1},
		{"false", zwave.BoolValue(false), true, 0},
		{"integer", zwave.NumberValue(42), true, 42},
		{"float", zwave.NumberValue(-3.25), true, -3.25},
		{"string", zwave.OtherValue(`"on"`), false, 0},
		{"null", zwave.OtherValue(`null`), false, 0},
		{"object", zwave.OtherValue(`{"a":1}`), false, 0},
		{"array", zwave.OtherValue(`[1,2]`), false, 0},
		{"absent", zwave.Value{}, false, 0},
	}

	c := NewClassifier(NewNodeCache(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := c.Classify(binarySwitch(tt.value))
			assert.Equal(t, tt.observe, d.Observe)
			if tt.observe {
				assert.Equal(t, tt.want, d.Value)
			} else {
				assert.Equal(t, SkipUnsupportedValue, d.Reason)
			}
		})
	}
}

func TestClassifyMissingFields(t *testing.T) {
	c := NewClassifier(NewNodeCache(), nil)

	ev := binarySwitch(zwave.BoolValue(true))
	ev.NodeID = 0
	assert.Equal(t, SkipMissingField, c.Classify(ev).Reason)

	ev = binarySwitch(zwave.BoolValue(true))
	ev.CommandClassName = ""
	assert.Equal(t, SkipMissingField, c.Classify(ev).Reason)
}

func TestClassifyLabels(t *testing.T) {
	dir := fakeDirectory{5: {ID: 5, Name: "Kitchen Light", Location: "Kitchen"}}
	c := NewClassifier(NewNodeCache(), dir)

	d := c.Classify(binarySwitch(zwave.BoolValue(true)))
	require.True(t, d.Observe)
	assert.Equal(t, "zjui_binary_switch", d.Metric)
	assert.Equal(t, "Gauge for Binary Switch", d.Help)
	assert.Equal(t, map[string]string{
		"nodeId":       "5",
		"location":     "Kitchen",
		"name":         "Kitchen Light",
		"commandClass": "Binary Switch",
		"property":     "targetValue",
		"propertyKey":  "",
		"label":        "Target value",
		"type":         "boolean",
		"endpoint":     "0",
		"id":           "5-37-0-targetValue",
	}, d.Labels)
	assert.Len(t, d.Labels, len(ValueLabelNames))
}

func TestClassifyPropertyFallbackAndKey(t *testing.T) {
	c := NewClassifier(NewNodeCache(), nil)

	ev := binarySwitch(zwave.NumberValue(230))
	ev.CommandClass = 50
	ev.CommandClassName = "Meter"
	ev.PropertyName = ""
	ev.Property = "value"
	ev.PropertyKey = "66049"
	ev.Endpoint = nil

	d := c.Classify(ev)
	require.True(t, d.Observe)
	assert.Equal(t, "value", d.Labels["property"])
	assert.Equal(t, "66049", d.Labels["propertyKey"])
	assert.Equal(t, "", d.Labels["endpoint"])
}

func TestClassifyMetadataFallsBackToPayload(t *testing.T) {
	c := NewClassifier(NewNodeCache(), fakeDirectory{})

	ev := binarySwitch(zwave.BoolValue(true))
	ev.NodeName = "From Payload"
	ev.NodeLocation = "Garage"

	d := c.Classify(ev)
	assert.Equal(t, "From Payload", d.Labels["name"])
	assert.Equal(t, "Garage", d.Labels["location"])
}

func TestClassifyUnknownNodeSynthesizesMetadata(t *testing.T) {
	c := NewClassifier(NewNodeCache(), fakeDirectory{})

	d := c.Classify(binarySwitch(zwave.NumberValue(1)))
	require.True(t, d.Observe)
	assert.Equal(t, "", d.Labels["name"])
	assert.Equal(t, "", d.Labels["location"])
}

func TestClassifyCachesOnce(t *testing.T) {
	dir := fakeDirectory{5: {ID: 5, Name: "Kitchen Light", Location: "Kitchen"}}
	c := NewClassifier(NewNodeCache(), dir)

	c.Classify(binarySwitch(zwave.BoolValue(true)))
	dir[5] = zwave.NodeInfo{ID: 5, Name: "Renamed", Location: "Hall"}

	d := c.Classify(binarySwitch(zwave.BoolValue(false)))
	assert.Equal(t, "Kitchen Light", d.Labels["name"])
	assert.Equal(t, "Kitchen", d.Labels["location"])
}

func TestClassifySkipsBeforeCaching(t *testing.T) {
	cache := NewNodeCache()
	c := NewClassifier(cache, nil)

	ev := binarySwitch(zwave.OtherValue(`"text"`))
	c.Classify(ev)
	assert.Equal(t, 0, cache.Len())
}
