// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package registry keeps the device gauge series created from Z-Wave events
// and renders them in the Prometheus text exposition format.
//
// Series are created on first use and live until the registry is reset.
// A Registry is safe for concurrent use: any number of scrapes may render
// while events create and set series.
package registry

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	apperrors "github.com/soothill/zwave-prometheus-exporter/pkg/errors"
	"github.com/soothill/zwave-prometheus-exporter/pkg/metrics"
)

// Series is one named gauge with a fixed label schema.
type Series struct {
	name       string
	help       string
	labelNames []string
	vec        *prometheus.GaugeVec
}

// Name returns the metric name.
func (s *Series) Name() string { return s.name }

// Help returns the help text fixed at creation.
func (s *Series) Help() string { return s.help }

// LabelNames returns a copy of the label schema in creation order.
func (s *Series) LabelNames() []string {
	return append([]string(nil), s.labelNames...)
}

// Set overwrites the value for the exact label combination. labels must
// carry every schema key and nothing else.
func (s *Series) Set(labels map[string]string, value float64) error {
	g, err := s.vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return fmt.Errorf("set %s: %w", s.name, err)
	}
	g.Set(value)
	return nil
}

// Option configures a Registry.
type Option func(*Registry)

// WithGatherers renders the given gatherers alongside the device series,
// for example prometheus.DefaultGatherer to expose the exporter's own metrics.
func WithGatherers(g ...prometheus.Gatherer) Option {
	return func(r *Registry) {
		r.extra = append(r.extra, g...)
	}
}

// Registry owns every device series, keyed by name.
type Registry struct {
	mu     sync.RWMutex
	series map[string]*Series
	reg    *prometheus.Registry
	extra  []prometheus.Gatherer
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		series: make(map[string]*Series),
		reg:    prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the series called name, creating it with help and
// labelNames if it does not exist. For an existing series help is ignored
// and labelNames must equal the original schema as a set, otherwise a
// *errors.SchemaMismatchError is returned.
func (r *Registry) GetOrCreate(name, help string, labelNames []string) (*Series, error) {
	r.mu.RLock()
	s, ok := r.series[name]
	r.mu.RUnlock()
	if ok {
		return s, checkSchema(s, labelNames)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another writer may have created it between the locks.
	if s, ok := r.series[name]; ok {
		return s, checkSchema(s, labelNames)
	}

	s = &Series{
		name:       name,
		help:       help,
		labelNames: append([]string(nil), labelNames...),
	}
	s.vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, s.labelNames)
	if err := r.reg.Register(s.vec); err != nil {
		return nil, fmt.Errorf("register %q: %w", name, err)
	}

	r.series[name] = s
	metrics.SeriesRegistered.Set(float64(len(r.series)))
	return s, nil
}

func checkSchema(s *Series, labelNames []string) error {
	if sameSet(s.labelNames, labelNames) {
		return nil
	}
	return apperrors.NewSchemaMismatchError(s.name, s.LabelNames(), append([]string(nil), labelNames...))
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, k := range a {
		seen[k]++
	}
	for _, k := range b {
		if seen[k] == 0 {
			return false
		}
		seen[k]--
	}
	return true
}

// Lookup returns the series called name.
func (r *Registry) Lookup(name string) (*Series, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.series[name]
	return s, ok
}

// Len returns the number of series.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.series)
}

// Names returns every series name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Reset forgets every series. Names become free again with any help text
// and label schema.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Unregister keeps the per-name help and label hash, so start over.
	r.reg = prometheus.NewRegistry()
	r.series = make(map[string]*Series)
	metrics.SeriesRegistered.Set(0)
}

// Gather collects the device series and any extra gatherers.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gatherers := append(prometheus.Gatherers{r.reg}, r.extra...)
	return gatherers.Gather()
}

// WriteExposition writes every series in the text exposition format:
// HELP and TYPE lines followed by one line per label combination.
// With no series nothing is written.
func (r *Registry) WriteExposition(w io.Writer) error {
	families, err := r.Gather()
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrRegistryUnavailable, err)
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// RenderExposition returns WriteExposition output as a string.
func (r *Registry) RenderExposition() (string, error) {
	var buf bytes.Buffer
	if err := r.WriteExposition(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
