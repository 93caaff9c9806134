// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package exporter

import "strings"

const (
	// Namespace prefixes every device series name.
	Namespace = "zjui"

	// NodeStatusMetric is the reserved series for node status.
	NodeStatusMetric = Namespace + "_node_status"

	// NodeStatusHelp is the help text of NodeStatusMetric.
	NodeStatusHelp = "Gauge for Node Status"
)

// Sanitize turns free text into a token usable in a metric name: lowercase,
// spaces become underscores, "₂" becomes "2", and every other character
// outside [a-z0-9_] is dropped. Sanitize is idempotent.
func Sanitize(text string) string {
	lower := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case r == '₂':
			b.WriteByte('2')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MetricName returns the series name for a command class display name.
func MetricName(commandClassName string) string {
	return Namespace + "_" + Sanitize(commandClassName)
}

// MetricHelp returns the help text for a command class series.
func MetricHelp(commandClassName string) string {
	return "Gauge for " + commandClassName
}
