package probe

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Protocol selects how an endpoint is probed.
type Protocol string

const (
	ProtocolTCP  Protocol = "tcp"
	ProtocolHTTP Protocol = "http"
)

// Endpoint identifies one dependency to wait on. Immutable once declared.
type Endpoint struct {
	Name     string
	Host     string
	Port     int
	Protocol Protocol
	// Path is the HTTP path probed for ProtocolHTTP endpoints. Ignored for TCP.
	Path string
}

// Addr returns the host:port pair for dialing.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the full probe URL for HTTP endpoints.
func (e Endpoint) URL() string {
	path := e.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("http://%s%s", e.Addr(), path)
}

// Validate reports whether the endpoint declaration is usable.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("endpoint name must not be empty")
	}
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("endpoint %q: host must not be empty", e.Name)
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("endpoint %q: port %d out of range", e.Name, e.Port)
	}
	switch e.Protocol {
	case ProtocolTCP, ProtocolHTTP:
	default:
		return fmt.Errorf("endpoint %q: unknown protocol %q", e.Name, e.Protocol)
	}
	return nil
}
