// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/soothill/zwave-prometheus-exporter/pkg/errors"
	"github.com/soothill/zwave-prometheus-exporter/pkg/util"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

// SchemaIssue is one schema violation, addressed by its dotted YAML path.
type SchemaIssue struct {
	Field       string
	Description string
}

// SchemaError lists every violation found in one document.
type SchemaError struct {
	Issues []SchemaIssue
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("configuration validation errors:")
	for i, issue := range e.Issues {
		fmt.Fprintf(&b, "\n  %d. %s: %s", i+1, issue.Field, issue.Description)
	}
	return b.String()
}

// Unwrap lets callers match schema failures with errors.ErrInvalidConfig.
func (e *SchemaError) Unwrap() error {
	return apperrors.ErrInvalidConfig
}

// ValidateWithSchema validates a configuration file against the embedded
// JSON schema. Unknown keys, mistyped values and malformed durations are
// reported together, which Load alone does not do.
func ValidateWithSchema(configPath string) error {
	configData, err := util.ReadFileSafely(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	return ValidateBytesWithSchema(configData)
}

// ValidateBytesWithSchema validates raw YAML against the embedded schema.
// Violations are returned as a *SchemaError.
func ValidateBytesWithSchema(configData []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(configData, &doc); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	// An empty document is valid; every section has defaults.
	if doc == nil {
		doc = map[string]interface{}{}
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert config to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(docJSON),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]SchemaIssue, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		issues = append(issues, SchemaIssue{Field: re.Field(), Description: re.Description()})
	}
	return &SchemaError{Issues: issues}
}

// LoadStrict reads path once, checks it against the schema and then parses
// it like Load. Reloads use it so a typo in a running config is reported
// instead of silently falling back to a default.
func LoadStrict(path string) (*Config, error) {
	data, err := util.ReadFileSafely(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := ValidateBytesWithSchema(data); err != nil {
		return nil, err
	}
	return Parse(data)
}

// GetSchemaJSON returns the embedded JSON schema as a string.
func GetSchemaJSON() string {
	return string(schemaJSON)
}
