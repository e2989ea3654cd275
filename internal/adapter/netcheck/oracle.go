// Package netcheck answers whether the host currently has a usable network.
package netcheck

import (
	"fmt"
	"log/slog"
	"net"
	"time"
)

// DefaultProbeAddr is the public address used to find the interface the
// kernel routes internet traffic through. Nothing is sent to it.
const DefaultProbeAddr = "8.8.8.8:53"

// Interface is a network interface profile as seen by the oracle.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	Addrs    []net.IP
}

func (i Interface) usable() bool {
	return i.Up && !i.Loopback
}

func (i Interface) hasGlobalUnicast() bool {
	for _, ip := range i.Addrs {
		if ip.IsGlobalUnicast() {
			return true
		}
	}
	return false
}

func (i Interface) owns(ip net.IP) bool {
	for _, a := range i.Addrs {
		if a.Equal(ip) {
			return true
		}
	}
	return false
}

// InterfaceLister enumerates the host's interface profiles.
type InterfaceLister func() ([]Interface, error)

// RouteProber returns the local address the kernel would use to reach the
// internet.
type RouteProber func() (net.IP, error)

// Oracle inspects interface state on every call. It keeps no cache.
type Oracle struct {
	list   InterfaceLister
	route  RouteProber
	logger *slog.Logger
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithInterfaceLister replaces the system interface enumeration.
func WithInterfaceLister(l InterfaceLister) Option {
	return func(o *Oracle) { o.list = l }
}

// WithRouteProber replaces the system route lookup.
func WithRouteProber(p RouteProber) Option {
	return func(o *Oracle) { o.route = p }
}

// New creates an Oracle backed by the host's network stack.
func New(logger *slog.Logger, opts ...Option) *Oracle {
	o := &Oracle{
		list:   SystemInterfaces,
		route:  UDPRouteProber(DefaultProbeAddr),
		logger: logger.With("component", "connectivity_oracle"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IsReachable reports true when an interface is up, not loopback and holds
// a global unicast address. Otherwise the route probe gives a second
// opinion: the local address the kernel picks for internet traffic must be
// global unicast, and the interface holding it, when listed, must be up and
// not loopback. An unlisted holder is an interface whose addresses could not
// be read, so the route is trusted.
func (o *Oracle) IsReachable() bool {
	ifaces, err := o.list()
	if err != nil {
		o.logger.Debug("Failed to enumerate network interfaces", "error", err)
		return false
	}

	for _, iface := range ifaces {
		if iface.usable() && iface.hasGlobalUnicast() {
			return true
		}
	}

	if o.route == nil {
		return false
	}
	local, err := o.route()
	if err != nil {
		o.logger.Debug("No internet route available", "error", err)
		return false
	}
	if !local.IsGlobalUnicast() {
		return false
	}
	for _, iface := range ifaces {
		if iface.owns(local) {
			return iface.usable()
		}
	}
	return true
}

// SystemInterfaces lists interfaces via the net package.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			// Left out; the route probe still covers it.
			continue
		}
		profile := Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}
		for _, a := range addrs {
			switch v := a.(type) {
			case *net.IPNet:
				profile.Addrs = append(profile.Addrs, v.IP)
			case *net.IPAddr:
				profile.Addrs = append(profile.Addrs, v.IP)
			}
		}
		out = append(out, profile)
	}
	return out, nil
}

// UDPRouteProber "connects" a UDP socket to addr, which only performs a
// route lookup, and returns the chosen local address.
func UDPRouteProber(addr string) RouteProber {
	return func() (net.IP, error) {
		conn, err := net.DialTimeout("udp", addr, time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve route to %s: %w", addr, err)
		}
		defer conn.Close()
		local, ok := conn.LocalAddr().(*net.UDPAddr)
		if !ok {
			return nil, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
		}
		return local.IP, nil
	}
}

// Static is an oracle with a fixed answer.
type Static bool

// IsReachable returns the fixed answer.
func (s Static) IsReachable() bool { return bool(s) }
