package probe

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const defaultProbeTimeout = 2 * time.Second

// Prober checks whether a single endpoint is currently accepting traffic.
// A probe never returns an error: every failure mode collapses to false.
type Prober interface {
	Probe(ctx context.Context, endpoint Endpoint) bool
}

// HealthProber additionally requires a success status from HTTP endpoints.
// Used for the application readiness check, where a mere open port is not
// enough evidence of health.
type HealthProber interface {
	ProbeHealthy(ctx context.Context, endpoint Endpoint) bool
}

// NetProber probes endpoints over the network. TCP endpoints are considered
// ready when a connection completes within the per-attempt timeout. HTTP
// endpoints are considered ready when any response arrives; ProbeHealthy
// additionally requires a 2xx status.
type NetProber struct {
	logger  zerolog.Logger
	timeout time.Duration
	dialer  *net.Dialer
	client  *retryablehttp.Client
}

// Option customizes NetProber behavior.
type Option func(*NetProber)

// WithTimeout overrides the per-attempt probe timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *NetProber) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// New constructs a NetProber with the given logger.
func New(logger zerolog.Logger, opts ...Option) *NetProber {
	p := &NetProber{
		logger:  logger,
		timeout: defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.dialer = &net.Dialer{Timeout: p.timeout}

	// Retries are handled by the wait stage, not per probe. Each probe is a
	// single attempt so attempt accounting stays with the caller.
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: p.timeout}
	p.client = client

	return p
}

// Probe implements Prober.
func (p *NetProber) Probe(ctx context.Context, endpoint Endpoint) bool {
	switch endpoint.Protocol {
	case ProtocolHTTP:
		return p.probeHTTP(ctx, endpoint, false)
	default:
		return p.probeTCP(ctx, endpoint)
	}
}

// ProbeHealthy implements HealthProber. TCP endpoints fall back to a plain
// connection check since there is no status to inspect.
func (p *NetProber) ProbeHealthy(ctx context.Context, endpoint Endpoint) bool {
	if endpoint.Protocol == ProtocolHTTP {
		return p.probeHTTP(ctx, endpoint, true)
	}
	return p.probeTCP(ctx, endpoint)
}

func (p *NetProber) probeTCP(ctx context.Context, endpoint Endpoint) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(dialCtx, "tcp", endpoint.Addr())
	if err != nil {
		p.logger.Debug().
			Str("endpoint", endpoint.Name).
			Str("addr", endpoint.Addr()).
			Err(err).
			Msg("tcp probe failed")
		return false
	}
	_ = conn.Close()
	return true
}

func (p *NetProber) probeHTTP(ctx context.Context, endpoint Endpoint, requireSuccess bool) bool {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, endpoint.URL(), nil)
	if err != nil {
		p.logger.Debug().
			Str("endpoint", endpoint.Name).
			Str("url", endpoint.URL()).
			Err(err).
			Msg("http probe request invalid")
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug().
			Str("endpoint", endpoint.Name).
			Str("url", endpoint.URL()).
			Err(err).
			Msg("http probe failed")
		return false
	}
	defer resp.Body.Close()

	if requireSuccess && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		p.logger.Debug().
			Str("endpoint", endpoint.Name).
			Str("status", resp.Status).
			Msg("http probe returned non-success status")
		return false
	}
	return true
}
