// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the Z-Wave exporter.
//
// Most conditions in the exporter are absorbed rather than surfaced: an event
// that cannot be observed is skipped, a scrape that cannot be rendered returns
// an empty body. The types here exist so that the places which do return an
// error (config loading, registry schema checks, transport setup) can be
// inspected with errors.As() and logged with their structured fields.
//
// # Example Usage
//
//	_, err := reg.GetOrCreate("zjui_binary_switch", "help", []string{"nodeId"})
//	var mismatch *errors.SchemaMismatchError
//	if errors.As(err, &mismatch) {
//	    log.Printf("series %s already uses labels %v", mismatch.Metric, mismatch.Want)
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// EventError represents an error while handling a device event.
type EventError struct {
	Op     string // Operation being performed (e.g., "decode value", "set gauge")
	NodeID int    // Node involved, 0 if unknown
	Err    error  // Underlying error
}

func (e *EventError) Error() string {
	if e.NodeID != 0 {
		return fmt.Sprintf("event %s (node=%d): %v", e.Op, e.NodeID, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("event %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("event %s failed", e.Op)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// NewEventError creates a new event error.
func NewEventError(op string, nodeID int, err error) *EventError {
	return &EventError{Op: op, NodeID: nodeID, Err: err}
}

// IsEventError checks if an error is an EventError.
func IsEventError(err error) bool {
	var ee *EventError
	return errors.As(err, &ee)
}

// SchemaMismatchError is returned when an existing series is requested with a
// label schema different from the one it was created with.
type SchemaMismatchError struct {
	Metric string   // Series name
	Want   []string // Label names the series was created with
	Got    []string // Label names supplied by the caller
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("series %q label schema mismatch: registered [%s], requested [%s]",
		e.Metric, strings.Join(e.Want, ","), strings.Join(e.Got, ","))
}

// Unwrap lets errors.Is match ErrSchemaMismatch.
func (e *SchemaMismatchError) Unwrap() error {
	return ErrSchemaMismatch
}

// NewSchemaMismatchError creates a new schema mismatch error.
func NewSchemaMismatchError(metric string, want, got []string) *SchemaMismatchError {
	return &SchemaMismatchError{Metric: metric, Want: want, Got: got}
}

// IsSchemaMismatchError checks if an error is a SchemaMismatchError.
func IsSchemaMismatchError(err error) bool {
	var se *SchemaMismatchError
	return errors.As(err, &se)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// TransportError represents an error talking to the broker or binding the HTTP listener.
type TransportError struct {
	Op   string // Operation being performed (e.g., "connect", "listen", "subscribe")
	Addr string // Network address or topic (if applicable)
	Err  error  // Underlying error
}

func (e *TransportError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("transport %s (%s): %v", e.Op, e.Addr, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s failed", e.Op)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error.
func NewTransportError(op string, addr string, err error) *TransportError {
	return &TransportError{Op: op, Addr: addr, Err: err}
}

// IsTransportError checks if an error is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ValidationError represents a data validation error.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   any    // Invalid value
	Reason  string // Why validation failed
	Details error  // Additional details (optional)
}

func (e *ValidationError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("validation error: field %q with value %v: %s (%v)", e.Field, e.Value, e.Reason, e.Details)
	}
	return fmt.Sprintf("validation error: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Details
}

// NewValidationError creates a new validation error.
func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Sentinel errors for common conditions
var (
	// ErrSchemaMismatch indicates a series was requested with a different label schema
	ErrSchemaMismatch = errors.New("label schema mismatch")

	// ErrRegistryUnavailable indicates the scrape path has no registry to render
	ErrRegistryUnavailable = errors.New("metrics registry is unavailable")

	// ErrNotConnected indicates the broker connection is down
	ErrNotConnected = errors.New("not connected")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timeout")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCircuitOpen indicates calls are being rejected by a circuit breaker
	ErrCircuitOpen = errors.New("circuit breaker open")
)
