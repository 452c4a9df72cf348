// Package port implements host port availability checks.
package port

import (
	"net"
	"strconv"
)

// Scanner checks whether specific ports are available on the host machine.
//
// It uses the operating system's network stack (net.Listen / net.ListenPacket)
// to determine if a port is free. This asks the OS directly rather than
// parsing /proc/net/* or relying on external commands like `lsof` or `ss`.
//
// The struct is stateless; it exists so callers can hold it as a dependency.
type Scanner struct{}

// NewScanner creates a new Scanner instance.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable checks whether a port is free on all interfaces.
//
// Docker publishes ports on 0.0.0.0, so the containerized automation
// server is checked against the same address space.
//
// Returns true if the port is free, false if it is in use or the protocol
// is unknown.
func (s *Scanner) IsPortAvailable(port int, protocol string) bool {
	return s.IsAddrAvailable("", port, protocol)
}

// IsAddrAvailable checks whether host:port can be bound. An empty host
// means all interfaces. Port 0 is always available because the OS picks.
func (s *Scanner) IsAddrAvailable(host string, port int, protocol string) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	switch protocol {
	case "tcp":
		// If the port is already bound by another process this returns an
		// error (typically "address already in use").
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = listener.Close() }()
		return true

	case "udp":
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()
		return true

	default:
		// Unknown protocol: report unavailable.
		return false
	}
}
