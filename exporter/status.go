// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package exporter

import "github.com/soothill/zwave-prometheus-exporter/zwave"

// StatusValue encodes a node status on the zjui_node_status scale:
// Alive 1, Asleep 2, Dead 3, anything else 0.
func StatusValue(status string) float64 {
	switch status {
	case zwave.StatusAlive:
		return 1
	case zwave.StatusAsleep:
		return 2
	case zwave.StatusDead:
		return 3
	default:
		return 0
	}
}
