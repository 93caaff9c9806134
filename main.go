// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Command zwave-exporter serves zwave-js-ui device values as Prometheus
// gauges.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/soothill/zwave-prometheus-exporter/app"
	"github.com/soothill/zwave-prometheus-exporter/config"
	"github.com/soothill/zwave-prometheus-exporter/discovery"
	"github.com/soothill/zwave-prometheus-exporter/pkg/logger"
)

const (
	healthCheckTimeout = 5 * time.Second
	discoverTimeout    = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	healthCheck := flag.Bool("health-check", false, "Query the running exporter's /health endpoint and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	discover := flag.Bool("discover", false, "List exporters advertised on the local network and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	switch {
	case *showVersion:
		fmt.Println(app.Version)
		return
	case *healthCheck:
		os.Exit(performHealthCheck(*configPath, os.Stdout, os.Stderr))
	case *validateConfig:
		os.Exit(performConfigValidation(*configPath, os.Stdout, os.Stderr))
	case *discover:
		os.Exit(performDiscovery(*configPath, os.Stdout, os.Stderr))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info().Str("version", app.Version).Msg("Starting Z-Wave Prometheus exporter")
	logger.Info().
		Str("broker", cfg.MQTT.Broker.Host).
		Int("broker_port", cfg.MQTT.Broker.Port).
		Str("prefix", cfg.MQTT.Prefix).
		Str("listen", cfg.HTTP.Addr()).
		Str("path", cfg.HTTP.MetricPath).
		Msg("Configuration loaded")

	application, err := app.New(cfg, *configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}

	setupDebugSignalHandlers(application)

	if err := application.Run(); err != nil {
		logger.Fatal().Err(err).Msg("Exporter stopped with error")
	}
}

// healthURL points at /health on the configured listener, substituting
// loopback for a wildcard host.
func healthURL(cfg *config.Config) string {
	host := cfg.HTTP.Host
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.HTTP.Port)) + "/health"
}

// performHealthCheck queries a running exporter and returns the exit code
func performHealthCheck(configPath string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: could not load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	url := healthURL(cfg)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: exporter unreachable at %s: %v\n", url, err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: %s returned %d\n", url, resp.StatusCode)
		return 1
	}

	fmt.Fprintln(stdout, "Health check passed: exporter is healthy")
	return 0
}

// performConfigValidation validates the configuration file and returns the exit code
func performConfigValidation(configPath string, stdout, stderr io.Writer) int {
	logger.Initialize("info")
	logger.Info().Str("path", configPath).Msg("Validating configuration file")

	if err := config.ValidateWithSchema(configPath); err != nil {
		logger.Error().Err(err).Msg("Configuration schema validation failed")
		fmt.Fprintf(stderr, "\n❌ Configuration validation FAILED\n")
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration validation failed")
		fmt.Fprintf(stderr, "\n❌ Configuration validation FAILED\n")
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "\n✅ Configuration validation PASSED")
	fmt.Fprintln(stdout, "\nConfiguration summary:")
	fmt.Fprintf(stdout, "  MQTT Broker: %s:%d (tls=%t)\n", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port, cfg.MQTT.Broker.TLS)
	fmt.Fprintf(stdout, "  MQTT Prefix: %s\n", cfg.MQTT.Prefix)
	fmt.Fprintf(stdout, "  Gateway Name: %s\n", cfg.MQTT.GatewayName)
	fmt.Fprintf(stdout, "  QoS: %d\n", cfg.MQTT.QoS)
	fmt.Fprintf(stdout, "  Metrics Endpoint: %s%s\n", cfg.HTTP.Addr(), cfg.HTTP.MetricPath)
	fmt.Fprintf(stdout, "  Exit On Error: %t\n", cfg.HTTP.ExitOnError)
	fmt.Fprintf(stdout, "  Self Metrics: %t\n", cfg.HTTP.SelfMetricsEnabled())
	fmt.Fprintf(stdout, "  Directory Refresh Interval: %s\n", cfg.Directory.RefreshInterval)
	fmt.Fprintf(stdout, "  Log Level: %s\n", cfg.Logging.Level)

	if cfg.Advertise.Enabled {
		fmt.Fprintf(stdout, "  mDNS Advertisement: %s.%s%s\n", cfg.Advertise.Instance, cfg.Advertise.ServiceType, cfg.Advertise.Domain)
	} else {
		fmt.Fprintln(stdout, "  mDNS Advertisement: Disabled")
	}

	fmt.Fprintln(stdout, "\nAll validation checks passed. Configuration is ready for use.")
	return 0
}

// performDiscovery lists exporters advertising the configured service type.
func performDiscovery(configPath string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
	}
	logger.Initialize("warn")

	peers, err := discovery.Browse(context.Background(), cfg.Advertise.ServiceType, cfg.Advertise.Domain, discoverTimeout)
	if err != nil {
		fmt.Fprintf(stderr, "Discovery failed: %v\n", err)
		return 1
	}

	if len(peers) == 0 {
		fmt.Fprintln(stdout, "No exporters found")
		return 0
	}
	for _, p := range peers {
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", p.Instance, p.URL(), p.Version)
	}
	return 0
}
