// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package exporter

import (
	"strconv"

	"github.com/soothill/zwave-prometheus-exporter/pkg/interfaces"
	"github.com/soothill/zwave-prometheus-exporter/zwave"
)

// SkipReason says why an event produced no observation.
type SkipReason string

const (
	// SkipNone is the reason of an observed event.
	SkipNone SkipReason = ""
	// SkipExcludedCommandClass marks command classes that are never exported.
	SkipExcludedCommandClass SkipReason = "excluded_command_class"
	// SkipMissingField marks events without a node id or command class name.
	SkipMissingField SkipReason = "missing_field"
	// SkipUnsupportedValue marks values that are neither numbers nor booleans.
	SkipUnsupportedValue SkipReason = "unsupported_value"
)

// Command classes whose values are never exported as gauges.
const (
	ccMultiChannel     = 96
	ccConfiguration    = 112
	ccManufacturerSpec = 114
	ccVersion          = 134
)

var excludedCommandClasses = map[int]bool{
	ccMultiChannel:     true,
	ccConfiguration:    true,
	ccManufacturerSpec: true,
	ccVersion:          true,
}

// ValueLabelNames is the label schema of every command class series.
var ValueLabelNames = []string{
	"nodeId",
	"location",
	"name",
	"commandClass",
	"property",
	"propertyKey",
	"label",
	"type",
	"endpoint",
	"id",
}

// StatusLabelNames is the label schema of zjui_node_status.
var StatusLabelNames = []string{"nodeId", "location", "name"}

// Decision is the outcome of classifying one value event.
type Decision struct {
	Observe bool
	Reason  SkipReason
	Value   float64
	Metric  string
	Help    string
	Labels  map[string]string
}

func skip(reason SkipReason) Decision {
	return Decision{Reason: reason}
}

// IsExcludedCommandClass reports whether events of commandClass are never exported.
func IsExcludedCommandClass(commandClass int) bool {
	return excludedCommandClasses[commandClass]
}

// Coerce maps a value to a gauge reading: numbers as-is, true 1, false 0.
// Any other kind reports false.
func Coerce(v zwave.Value) (float64, bool) {
	switch v.Kind {
	case zwave.KindNumber:
		return v.Number, true
	case zwave.KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Classifier decides which value events become observations.
type Classifier struct {
	cache     *NodeCache
	directory interfaces.NodeDirectory
}

// NewClassifier creates a classifier resolving node metadata through cache,
// backed by directory. directory may be nil.
func NewClassifier(cache *NodeCache, directory interfaces.NodeDirectory) *Classifier {
	return &Classifier{cache: cache, directory: directory}
}

// Classify returns an Observe decision with value and labels, or a skip
// with its reason. It never fails.
func (c *Classifier) Classify(ev zwave.ValueChanged) Decision {
	if IsExcludedCommandClass(ev.CommandClass) {
		return skip(SkipExcludedCommandClass)
	}
	if ev.NodeID <= 0 || ev.CommandClassName == "" {
		return skip(SkipMissingField)
	}

	value, ok := Coerce(ev.Value)
	if !ok {
		return skip(SkipUnsupportedValue)
	}

	meta := c.cache.GetOrPopulate(ev.NodeID, c.lookup(ev))

	return Decision{
		Observe: true,
		Value:   value,
		Metric:  MetricName(ev.CommandClassName),
		Help:    MetricHelp(ev.CommandClassName),
		Labels: map[string]string{
			"nodeId":       strconv.Itoa(ev.NodeID),
			"location":     meta.Location,
			"name":         meta.Name,
			"commandClass": ev.CommandClassName,
			"property":     ev.PropertyLabel(),
			"propertyKey":  string(ev.PropertyKey),
			"label":        ev.Label,
			"type":         ev.Type,
			"endpoint":     ev.EndpointLabel(),
			"id":           ev.ID,
		},
	}
}

// lookup resolves a node from the directory, falling back to the names the
// gateway embedded in the payload. An unknown node gets empty metadata.
func (c *Classifier) lookup(ev zwave.ValueChanged) func() NodeMetadata {
	return func() NodeMetadata {
		if c.directory != nil {
			if info, ok := c.directory.Lookup(ev.NodeID); ok {
				return NodeMetadata{Name: info.Name, Location: info.Location, Status: info.Status}
			}
		}
		return NodeMetadata{Name: ev.NodeName, Location: ev.NodeLocation}
	}
}
