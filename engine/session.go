package engine

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
)

// routeTarget never has to be reachable; connecting a UDP socket to it only
// makes the kernel pick the outbound interface.
const routeTarget = "10.255.255.255:1"

var loopback = netip.MustParseAddr("127.0.0.1")

// OutboundIP returns the local IPv4 address used for outbound traffic,
// or 127.0.0.1 when no route is found.
func OutboundIP() netip.Addr {
	conn, err := net.Dial("udp4", routeTarget)
	if err != nil {
		return loopback
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return loopback
	}
	ip, ok := netip.AddrFromSlice(addr.IP)
	if !ok || ip.Unmap().IsUnspecified() {
		return loopback
	}
	return ip.Unmap()
}

// Bind opens the relay socket on (ip, port). An invalid ip selects OutboundIP.
func Bind(ip netip.Addr, port int) (*net.UDPConn, error) {
	if !ip.IsValid() {
		ip = OutboundIP()
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrBind, port)
	}

	laddr := netip.AddrPortFrom(ip, uint16(port))
	network := "udp4"
	if ip.Is6() && !ip.Is4In6() {
		network = "udp6"
	}
	conn, err := net.ListenUDP(network, net.UDPAddrFromAddrPort(laddr))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBind, laddr, err)
	}
	return conn, nil
}

// Session remembers the client endpoint. It is learned at most once.
type Session struct {
	mu      sync.Mutex
	client  netip.AddrPort
	learned bool
}

// Learn records src as the client if no client is known yet and src is not
// the server. It returns the stored client, whether one is known, and
// whether this call was the one that learned it.
func (s *Session) Learn(src netip.AddrPort, server netip.Addr) (client netip.AddrPort, known, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.learned && src.Addr().Unmap() != server.Unmap() {
		s.client = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())
		s.learned = true
		first = true
	}
	return s.client, s.learned, first
}

// Client returns the learned client endpoint, if any.
func (s *Session) Client() (netip.AddrPort, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.learned
}
