// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/soothill/zwave-prometheus-exporter/pkg/errors"
)

func validConfig() Config {
	cfg := Default()
	return *cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		field   string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
			field:   "mqtt.broker.host",
		},
		{
			name:    "broker port out of range",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: true,
			field:   "mqtt.broker.port",
		},
		{
			name:    "qos out of range",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
			field:   "mqtt.qos",
		},
		{
			name:    "wildcard in prefix",
			mutate:  func(c *Config) { c.MQTT.Prefix = "zwave/#" },
			wantErr: true,
			field:   "mqtt.prefix",
		},
		{
			name:    "prefix with trailing slash",
			mutate:  func(c *Config) { c.MQTT.Prefix = "zwave/" },
			wantErr: true,
			field:   "mqtt.prefix",
		},
		{
			name:    "nested prefix is allowed",
			mutate:  func(c *Config) { c.MQTT.Prefix = "home/zwave" },
			wantErr: false,
		},
		{
			name:    "max reconnect delay below initial",
			mutate:  func(c *Config) { c.MQTT.Reconnect.MaxDelay = 500 * time.Millisecond },
			wantErr: true,
			field:   "mqtt.reconnect.max_delay",
		},
		{
			name:    "metric path without leading slash",
			mutate:  func(c *Config) { c.HTTP.MetricPath = "metrics" },
			wantErr: true,
			field:   "http.metric_path",
		},
		{
			name:    "metric path reserved",
			mutate:  func(c *Config) { c.HTTP.MetricPath = "/health" },
			wantErr: true,
			field:   "http.metric_path",
		},
		{
			name:    "request timeout too short",
			mutate:  func(c *Config) { c.Directory.RequestTimeout = time.Millisecond },
			wantErr: true,
			field:   "directory.request_timeout",
		},
		{
			name: "advertise enabled without instance",
			mutate: func(c *Config) {
				c.Advertise.Enabled = true
				c.Advertise.Instance = ""
			},
			wantErr: true,
			field:   "advertise.instance",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
			field:   "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
			field:   "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}

			var cfgErr *apperrors.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %T, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("ConfigError.Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestValidate_RedactsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Auth.Password = "s3cret"
	cfg.MQTT.Broker.Host = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	if strings.Contains(err.Error(), "s3cret") {
		t.Errorf("error leaks password: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Error("Load() should fail for non-existent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  broker: [unterminated\n")

	if _, err := Load(path); err == nil {
		t.Error("Load() should fail for invalid YAML")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker:
    host: broker.lan
    port: 8883
    client_id: exporter-1
    tls: true
  auth:
    username: exporter
    password: hunter2
  prefix: home/zwave
  gateway_name: gw1
  qos: 1
http:
  host: 127.0.0.1
  port: 9101
  metric_path: /zwave/metrics
  exit_on_error: true
  self_metrics: false
directory:
  refresh_interval: 10m
  request_timeout: 5s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.lan" || cfg.MQTT.Broker.Port != 8883 || !cfg.MQTT.Broker.TLS {
		t.Errorf("broker = %+v", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Prefix != "home/zwave" || cfg.MQTT.GatewayName != "gw1" || cfg.MQTT.QoS != 1 {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.HTTP.Addr() != "127.0.0.1:9101" {
		t.Errorf("HTTP.Addr() = %q, want 127.0.0.1:9101", cfg.HTTP.Addr())
	}
	if cfg.HTTP.MetricPath != "/zwave/metrics" || !cfg.HTTP.ExitOnError {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if cfg.HTTP.SelfMetricsEnabled() {
		t.Error("SelfMetricsEnabled() = true, want false")
	}
	if cfg.Directory.RefreshInterval != 10*time.Minute || cfg.Directory.RequestTimeout != 5*time.Second {
		t.Errorf("directory = %+v", cfg.Directory)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  broker:\n    host: from-file\n")

	t.Setenv("MQTT_HOST", "from-env")
	t.Setenv("MQTT_PORT", "1884")
	t.Setenv("MQTT_PASSWORD", "env-pass")
	t.Setenv("ZWAVE_MQTT_PREFIX", "zw")
	t.Setenv("METRICS_PORT", "9200")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DIRECTORY_REFRESH_INTERVAL", "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MQTT.Broker.Host != "from-env" {
		t.Errorf("Broker.Host = %q, want from-env", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("Broker.Port = %d, want 1884", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Password != "env-pass" {
		t.Error("MQTT_PASSWORD was not applied")
	}
	if cfg.MQTT.Prefix != "zw" {
		t.Errorf("Prefix = %q, want zw", cfg.MQTT.Prefix)
	}
	if cfg.HTTP.Port != 9200 {
		t.Errorf("HTTP.Port = %d, want 9200", cfg.HTTP.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Directory.RefreshInterval != 2*time.Minute {
		t.Errorf("RefreshInterval = %v, want 2m", cfg.Directory.RefreshInterval)
	}
}

func TestLoad_InvalidEnvironmentValuesIgnored(t *testing.T) {
	path := writeConfig(t, "")

	t.Setenv("METRICS_PORT", "not-a-port")
	t.Setenv("DIRECTORY_REFRESH_INTERVAL", "soon")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.HTTP.Port != 9001 {
		t.Errorf("HTTP.Port = %d, want default 9001", cfg.HTTP.Port)
	}
	if cfg.Directory.RefreshInterval != 0 {
		t.Errorf("RefreshInterval = %v, want 0", cfg.Directory.RefreshInterval)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MQTT.Broker.Host != "localhost" || cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("broker defaults = %+v", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Prefix != "zwave" || cfg.MQTT.GatewayName != "zwave-js-ui" {
		t.Errorf("topic defaults = %q %q", cfg.MQTT.Prefix, cfg.MQTT.GatewayName)
	}
	if cfg.HTTP.Addr() != "0.0.0.0:9001" || cfg.HTTP.MetricPath != "/metrics" {
		t.Errorf("http defaults = %+v", cfg.HTTP)
	}
	if cfg.HTTP.ExitOnError {
		t.Error("ExitOnError should default to false")
	}
	if !cfg.HTTP.SelfMetricsEnabled() {
		t.Error("SelfMetricsEnabled() should default to true")
	}
	if cfg.Directory.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.Directory.RequestTimeout)
	}
	if cfg.Advertise.Enabled {
		t.Error("Advertise.Enabled should default to false")
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console", cfg.Logging.Format)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "http:\n  metric_path: /ready\n")

	_, err := Load(path)
	if !apperrors.IsConfigError(err) {
		t.Errorf("Load() error = %v, want ConfigError", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}
