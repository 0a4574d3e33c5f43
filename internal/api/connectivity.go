package api

import (
	"context"
	"net"
	"net/url"
	"sync/atomic"
	"time"
)

// Connectivity reports whether the network is reachable.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline is a Connectivity that never reports offline.
type AlwaysOnline struct{}

// Online returns true.
func (AlwaysOnline) Online(context.Context) bool { return true }

// Switch is a Connectivity toggled by the caller. The zero value is online.
type Switch struct {
	offline atomic.Bool
}

// Online reports the current switch position.
func (s *Switch) Online(context.Context) bool { return !s.offline.Load() }

// Set turns connectivity on or off.
func (s *Switch) Set(online bool) { s.offline.Store(!online) }

// DialProbe reports online when a TCP connection to the API host succeeds.
type DialProbe struct {
	Addr    string // host:port
	Timeout time.Duration
}

// NewDialProbe derives the probe address from baseURL.
func NewDialProbe(baseURL string, timeout time.Duration) (*DialProbe, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	return &DialProbe{Addr: host, Timeout: timeout}, nil
}

// Online dials Addr and closes the connection immediately.
func (p *DialProbe) Online(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
