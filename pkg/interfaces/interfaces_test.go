// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces_test

import (
	"github.com/soothill/zwave-prometheus-exporter/pkg/interfaces"
	"github.com/soothill/zwave-prometheus-exporter/registry"
	"github.com/soothill/zwave-prometheus-exporter/zwave"
)

// Compile-time checks that the concrete types satisfy the contracts.
var (
	_ interfaces.EventSource   = (*zwave.Source)(nil)
	_ interfaces.HealthChecker = (*zwave.Source)(nil)
	_ interfaces.NodeDirectory = (*zwave.Directory)(nil)
	_ interfaces.Renderer      = (*registry.Registry)(nil)
)
