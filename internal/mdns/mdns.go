// Package mdns advertises running nodes over zeroconf so they can be listed
// with `seamless browse`. Peer discovery itself stays on the multicast
// directory; this is informational only.
package mdns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/bnema/seamless/internal/logger"
	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the service name without domain suffix.
	DefaultService = "_seamless._udp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// Version is advertised in the TXT record.
	Version = 1
)

var log = logger.Component("mdns")

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls advertisement and browsing.
type Config struct {
	Service  string
	Domain   string
	Instance string // defaults to the host name
	Port     int
	Token    string

	registerFn registerFunc
	browseFn   browseFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Instance == "" {
		if host, err := os.Hostname(); err == nil {
			out.Instance = host
		}
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

// Instance is one advertised node
type Instance struct {
	Name    string
	Token   string
	Version int
	Host    string
	Port    int
	Addrs   []netip.Addr
}

// Advertiser keeps a registration alive until Stop.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers this node.
func Advertise(config Config) (*Advertiser, error) {
	cfg := config.withDefaults()
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("token is required")
	}
	if cfg.Port <= 0 {
		return nil, errors.New("port must be > 0")
	}
	if cfg.Instance == "" {
		return nil, errors.New("instance name is required")
	}

	txt := []string{
		"token=" + cfg.Token,
		"version=" + strconv.Itoa(Version),
	}
	server, err := cfg.registerFn(cfg.Instance, cfg.Service, cfg.Domain, cfg.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	log.Info("Advertising over mDNS", "instance", cfg.Instance, "service", cfg.Service, "port", cfg.Port)
	return &Advertiser{server: server}, nil
}

// Stop withdraws the registration.
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// Browse collects instances until ctx is done and returns them sorted by name.
func Browse(ctx context.Context, config Config) ([]Instance, error) {
	cfg := config.withDefaults()
	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("create mDNS resolver: %w", err)
		}
		browse = resolver.Browse
	}

	entries := make(chan *zeroconf.ServiceEntry, 32)
	errc := make(chan error, 1)
	go func() { errc <- browse(ctx, cfg.Service, cfg.Domain, entries) }()

	found := make(map[string]Instance)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return sorted(found), nil
			}
			if entry == nil {
				continue
			}
			inst := parseEntry(entry)
			found[inst.Name] = inst
		case err := <-errc:
			if err != nil {
				return nil, fmt.Errorf("browse mDNS: %w", err)
			}
			errc = nil
		case <-ctx.Done():
			return sorted(found), nil
		}
	}
}

func parseEntry(entry *zeroconf.ServiceEntry) Instance {
	inst := Instance{
		Name: entry.Instance,
		Host: entry.HostName,
		Port: entry.Port,
	}
	for _, kv := range entry.Text {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "token":
			inst.Token = strings.TrimSpace(value)
		case "version":
			inst.Version, _ = strconv.Atoi(value)
		}
	}
	for _, ip := range append(append([]net.IP(nil), entry.AddrIPv4...), entry.AddrIPv6...) {
		if addr, ok := netip.AddrFromSlice(ip); ok {
			inst.Addrs = append(inst.Addrs, addr.Unmap())
		}
	}
	return inst
}

func sorted(found map[string]Instance) []Instance {
	out := make([]Instance, 0, len(found))
	for _, inst := range found {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
