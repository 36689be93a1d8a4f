package mdns

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvertise(t *testing.T) {
	var (
		gotInstance, gotService, gotDomain string
		gotPort                            int
		gotTXT                             []string
	)
	cfg := Config{
		Instance: "desk",
		Port:     47771,
		Token:    "5f1d7c2e-0000-4000-8000-000000000001",
		registerFn: func(instance, service, domain string, port int, text []string, _ []net.Interface) (*zeroconf.Server, error) {
			gotInstance, gotService, gotDomain, gotPort = instance, service, domain, port
			gotTXT = append([]string(nil), text...)
			return nil, nil
		},
	}

	adv, err := Advertise(cfg)
	require.NoError(t, err)
	adv.Stop()

	assert.Equal(t, "desk", gotInstance)
	assert.Equal(t, DefaultService, gotService)
	assert.Equal(t, DefaultDomain, gotDomain)
	assert.Equal(t, 47771, gotPort)
	assert.Equal(t, []string{"token=" + cfg.Token, "version=1"}, gotTXT)
}

func TestAdvertiseValidation(t *testing.T) {
	noop := func(string, string, string, int, []string, []net.Interface) (*zeroconf.Server, error) {
		return nil, nil
	}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing token", Config{Instance: "a", Port: 1, registerFn: noop}},
		{"missing port", Config{Instance: "a", Token: "t", registerFn: noop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Advertise(tt.cfg)
			assert.Error(t, err)
		})
	}

	_, err := Advertise(Config{Instance: "a", Port: 1, Token: "t",
		registerFn: func(string, string, string, int, []string, []net.Interface) (*zeroconf.Server, error) {
			return nil, errors.New("no multicast")
		}})
	assert.ErrorContains(t, err, "no multicast")
}

func entry(name string, ips ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(name, DefaultService, DefaultDomain)
	e.HostName = name + ".local."
	e.Port = 47771
	e.Text = []string{"token=tok-" + name, "version=1"}
	for _, ip := range ips {
		e.AddrIPv4 = append(e.AddrIPv4, net.ParseIP(ip))
	}
	return e
}

func TestBrowse(t *testing.T) {
	cfg := Config{
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			go func() {
				entries <- entry("zeta", "10.0.0.3")
				entries <- nil
				entries <- entry("alpha", "10.0.0.1")
				entries <- entry("zeta", "10.0.0.4")
			}()
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	found, err := Browse(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.Equal(t, "alpha", found[0].Name)
	assert.Equal(t, "tok-alpha", found[0].Token)
	assert.Equal(t, 1, found[0].Version)
	assert.Equal(t, 47771, found[0].Port)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.1")}, found[0].Addrs)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.4")}, found[1].Addrs, "latest entry wins")
}

func TestBrowseError(t *testing.T) {
	cfg := Config{
		browseFn: func(context.Context, string, string, chan<- *zeroconf.ServiceEntry) error {
			return errors.New("socket closed")
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Browse(ctx, cfg)
	assert.ErrorContains(t, err, "socket closed")
}
