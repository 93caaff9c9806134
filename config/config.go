// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the Z-Wave exporter.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/soothill/zwave-prometheus-exporter/pkg/errors"
	"github.com/soothill/zwave-prometheus-exporter/pkg/util"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Directory DirectoryConfig `yaml:"directory"`
	Advertise AdvertiseConfig `yaml:"advertise"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MQTTConfig holds the broker connection and zwave-js-ui gateway topic settings
type MQTTConfig struct {
	Broker      BrokerConfig    `yaml:"broker"`
	Auth        AuthConfig      `yaml:"auth"`
	Prefix      string          `yaml:"prefix" validate:"required,excludesall=#+"`
	GatewayName string          `yaml:"gateway_name" validate:"required,excludesall=#+/"`
	QoS         int             `yaml:"qos" validate:"gte=0,lte=2"`
	Reconnect   ReconnectConfig `yaml:"reconnect"`
}

// BrokerConfig identifies the MQTT broker
type BrokerConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"gte=1,lte=65535"`
	ClientID string `yaml:"client_id" validate:"required"`
	TLS      bool   `yaml:"tls"`
}

// AuthConfig holds optional broker credentials
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ReconnectConfig bounds the broker reconnect backoff
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gte=100ms"`
	MaxDelay     time.Duration `yaml:"max_delay" validate:"gtefield=InitialDelay"`
}

// HTTPConfig holds the scrape endpoint settings
type HTTPConfig struct {
	Host        string `yaml:"host" validate:"required,ip|hostname"`
	Port        int    `yaml:"port" validate:"gte=1,lte=65535"`
	MetricPath  string `yaml:"metric_path" validate:"required,startswith=/"`
	ExitOnError bool   `yaml:"exit_on_error"`
	SelfMetrics *bool  `yaml:"self_metrics"`
}

// SelfMetricsEnabled reports whether the exporter's own metrics are served
// alongside the device series. Defaults to true.
func (h HTTPConfig) SelfMetricsEnabled() bool {
	return h.SelfMetrics == nil || *h.SelfMetrics
}

// Addr returns host:port for the listener.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DirectoryConfig controls how node names and locations are fetched from the gateway
type DirectoryConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gte=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" validate:"gte=100ms,lte=5m"`
}

// AdvertiseConfig controls mDNS advertisement of the scrape endpoint
type AdvertiseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Instance    string `yaml:"instance" validate:"required_if=Enabled true"`
	ServiceType string `yaml:"service_type" validate:"required_if=Enabled true"`
	Domain      string `yaml:"domain" validate:"required_if=Enabled true"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error fatal panic"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// reservedPaths are served by the HTTP shell itself.
var reservedPaths = map[string]bool{"/health": true, "/ready": true}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML names so errors match the config file.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	data, err := util.ReadFileSafely(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies environment overrides and defaults, and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvironmentOverrides() {
	if host := os.Getenv("MQTT_HOST"); host != "" {
		c.MQTT.Broker.Host = host
	}
	if port := os.Getenv("MQTT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.MQTT.Broker.Port = p
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse MQTT_PORT '%s': %v\n", port, err)
		}
	}
	if username := os.Getenv("MQTT_USERNAME"); username != "" {
		c.MQTT.Auth.Username = username
	}
	if password := os.Getenv("MQTT_PASSWORD"); password != "" {
		c.MQTT.Auth.Password = password
	}
	if prefix := os.Getenv("ZWAVE_MQTT_PREFIX"); prefix != "" {
		c.MQTT.Prefix = prefix
	}
	if host := os.Getenv("METRICS_HOST"); host != "" {
		c.HTTP.Host = host
	}
	if port := os.Getenv("METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.HTTP.Port = p
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse METRICS_PORT '%s': %v\n", port, err)
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if interval := os.Getenv("DIRECTORY_REFRESH_INTERVAL"); interval != "" {
		duration, parseErr := time.ParseDuration(interval)
		if parseErr == nil {
			c.Directory.RefreshInterval = duration
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse DIRECTORY_REFRESH_INTERVAL '%s': %v\n", interval, parseErr)
		}
	}
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.MQTT.Broker.Host == "" {
		c.MQTT.Broker.Host = "localhost"
	}
	if c.MQTT.Broker.Port == 0 {
		c.MQTT.Broker.Port = 1883
	}
	if c.MQTT.Broker.ClientID == "" {
		c.MQTT.Broker.ClientID = "zwave-exporter"
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = "zwave"
	}
	if c.MQTT.GatewayName == "" {
		c.MQTT.GatewayName = "zwave-js-ui"
	}
	if c.MQTT.Reconnect.InitialDelay == 0 {
		c.MQTT.Reconnect.InitialDelay = time.Second
	}
	if c.MQTT.Reconnect.MaxDelay == 0 {
		c.MQTT.Reconnect.MaxDelay = time.Minute
	}
	if c.HTTP.Host == "" {
		c.HTTP.Host = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 9001
	}
	if c.HTTP.MetricPath == "" {
		c.HTTP.MetricPath = "/metrics"
	}
	if c.Directory.RequestTimeout == 0 {
		c.Directory.RequestTimeout = 10 * time.Second
	}
	if c.Advertise.Instance == "" {
		c.Advertise.Instance = "zwave-exporter"
	}
	if c.Advertise.ServiceType == "" {
		c.Advertise.ServiceType = "_prometheus-http._tcp"
	}
	if c.Advertise.Domain == "" {
		c.Advertise.Domain = "local."
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return translateValidationError(err)
	}

	if reservedPaths[c.HTTP.MetricPath] {
		return apperrors.NewConfigError("http.metric_path", c.HTTP.MetricPath,
			fmt.Errorf("path is reserved for health checks"))
	}
	if strings.HasPrefix(c.MQTT.Prefix, "/") || strings.HasSuffix(c.MQTT.Prefix, "/") {
		return apperrors.NewConfigError("mqtt.prefix", c.MQTT.Prefix,
			fmt.Errorf("must not start or end with '/'"))
	}

	return nil
}

// translateValidationError converts the first validator failure into a ConfigError.
func translateValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !asValidationErrors(err, &verrs) || len(verrs) == 0 {
		return apperrors.NewConfigError("config", "", err)
	}

	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	value := fmt.Sprintf("%v", fe.Value())
	if strings.HasSuffix(field, "password") {
		value = "[redacted]"
	}

	reason := fe.Tag()
	if fe.Param() != "" {
		reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
	}

	return apperrors.NewConfigError(field, value, fmt.Errorf("%w: failed %q check", apperrors.ErrInvalidConfig, reason))
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
