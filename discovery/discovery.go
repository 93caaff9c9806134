// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package discovery announces the scrape endpoint over mDNS (DNS-SD) and
// finds other exporters doing the same.
//
// An Advertiser registers one service instance, by default of type
// "_prometheus-http._tcp" in "local.", with TXT records describing the
// metric path and exporter version:
//
//	path=/metrics
//	version=1.2.0
//
// Browse is the reverse: it collects every instance of a service type
// seen on the network within a timeout. It backs the -discover flag.
//
// # Example Usage
//
//	adv := discovery.NewAdvertiser(cfg.Advertise, 9001, "/metrics", version)
//	if err := adv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer adv.Stop()
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
	"github.com/soothill/zwave-prometheus-exporter/config"
	"github.com/soothill/zwave-prometheus-exporter/pkg/logger"
)

// TXT record keys.
const (
	txtPath    = "path"
	txtVersion = "version"
)

// browseBuffer keeps the resolver from blocking while entries are parsed.
const browseBuffer = 10

// registerFunc matches zeroconf.Register.
type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)

// Advertiser publishes the scrape endpoint on the local network.
type Advertiser struct {
	cfg     config.AdvertiseConfig
	port    int
	path    string
	version string
	log     zerolog.Logger

	register registerFunc

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates a stopped advertiser for the endpoint on port
// serving path.
func NewAdvertiser(cfg config.AdvertiseConfig, port int, path, version string) *Advertiser {
	return &Advertiser{
		cfg:      cfg,
		port:     port,
		path:     path,
		version:  version,
		log:      logger.Component("discovery"),
		register: zeroconf.Register,
	}
}

// TXT returns the TXT records announced with the service.
func (a *Advertiser) TXT() []string {
	txt := []string{txtPath + "=" + a.path}
	if a.version != "" {
		txt = append(txt, txtVersion+"="+a.version)
	}
	return txt
}

// Start registers the service. It is a no-op when advertisement is disabled
// or already running.
func (a *Advertiser) Start() error {
	if !a.cfg.Enabled {
		a.log.Debug().Msg("mDNS advertisement disabled")
		return nil
	}
	if a.port <= 0 {
		return fmt.Errorf("cannot advertise port %d", a.port)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	srv, err := a.register(a.cfg.Instance, a.cfg.ServiceType, a.cfg.Domain, a.port, a.TXT(), nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = srv

	a.log.Info().
		Str("instance", a.cfg.Instance).
		Str("service", a.cfg.ServiceType).
		Str("domain", a.cfg.Domain).
		Int("port", a.port).
		Msg("Advertising metrics endpoint")
	return nil
}

// Stop withdraws the service. Safe to call when not started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.log.Info().Msg("Stopped advertising metrics endpoint")
}

// IsAdvertising reports whether the service is registered.
func (a *Advertiser) IsAdvertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Peer is an exporter instance found on the network.
type Peer struct {
	Instance string
	Hostname string
	Address  net.IP
	Port     int
	Path     string
	Version  string
}

// URL returns the scrape URL of the peer.
func (p Peer) URL() string {
	path := p.Path
	if path == "" {
		path = "/metrics"
	}
	return "http://" + net.JoinHostPort(p.Address.String(), strconv.Itoa(p.Port)) + path
}

// Browse collects every instance of serviceType in domain announced within
// timeout, sorted by instance name. Instances seen twice are reported once.
func Browse(ctx context.Context, serviceType, domain string, timeout time.Duration) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	log := logger.Component("discovery")
	entries := make(chan *zeroconf.ServiceEntry, browseBuffer)
	peers := make(map[string]Peer)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		// The resolver closes entries when the browse context ends.
		for entry := range entries {
			peer, ok := parseServiceEntry(entry)
			if !ok {
				continue
			}
			peers[peer.Instance] = peer
			log.Debug().
				Str("instance", peer.Instance).
				Str("url", peer.URL()).
				Msg("Discovered exporter")
		}
	}()

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := resolver.Browse(browseCtx, serviceType, domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse: %w", err)
	}

	<-browseCtx.Done()
	wg.Wait()

	out := make([]Peer, 0, len(peers))
	for _, p := range peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

// parseServiceEntry converts a resolved entry, preferring IPv4. Entries
// without an address are dropped.
func parseServiceEntry(entry *zeroconf.ServiceEntry) (Peer, bool) {
	if entry == nil {
		return Peer{}, false
	}

	var addr net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		addr = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		addr = entry.AddrIPv6[0]
	default:
		return Peer{}, false
	}

	txt := parseTXT(entry.Text)
	return Peer{
		Instance: entry.Instance,
		Hostname: entry.HostName,
		Address:  addr,
		Port:     entry.Port,
		Path:     txt[txtPath],
		Version:  txt[txtVersion],
	}, true
}

// parseTXT splits key=value records. Records without '=' are ignored.
func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, ok := strings.Cut(r, "=")
		if ok && k != "" {
			out[k] = v
		}
	}
	return out
}
