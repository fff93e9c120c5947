package health

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

// maxDrainBytes bounds how much of a probe response body is read before the
// connection is returned to the pool.
const maxDrainBytes = 64 << 10

// Target is everything a Prober needs to reach one dependency.
type Target struct {
	Name string
	URL  string
	Auth Auth

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// Auth holds resolved credentials for a probe target.
type Auth struct {
	// Mode is one of: apikey | bearer | basic | mtls | none.
	Mode string

	// Header and Key are used when Mode == "apikey".
	Header string
	Key    string

	// Token is used when Mode == "bearer".
	Token string

	// Username and Password are used when Mode == "basic".
	Username string
	Password string

	// CertFile, KeyFile and the optional CAFile are used when Mode == "mtls".
	CertFile string
	KeyFile  string
	CAFile   string
}

// ProbeResult is the outcome of one liveness probe.
type ProbeResult struct {
	Status     DependencyStatus
	Latency    time.Duration
	StatusCode int
	Err        error
}

// Prober checks whether a dependency is reachable. Implementations must
// return once ctx is done.
type Prober interface {
	Probe(ctx context.Context, t Target) ProbeResult
}

// HTTPProber probes targets with an HTTP GET. A 2xx response is up, any
// other response is degraded and a transport error is down.
//
// HTTPProber is safe for concurrent use.
type HTTPProber struct {
	mu      sync.Mutex
	clients map[string]cachedClient
}

// cachedClient is the client built for target.
type cachedClient struct {
	target Target
	client *http.Client
}

// NewHTTPProber returns a prober that keeps one HTTP client per dependency
// name. The client is rebuilt when the target's settings change.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{clients: make(map[string]cachedClient)}
}

// Probe issues GET t.URL. The deadline is taken from ctx.
func (p *HTTPProber) Probe(ctx context.Context, t Target) ProbeResult {
	client, err := p.client(t)
	if err != nil {
		return ProbeResult{Status: DependencyDown, Latency: ProbeFailedLatency, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return ProbeResult{Status: DependencyDown, Latency: ProbeFailedLatency, Err: fmt.Errorf("build request: %w", err)}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return ProbeResult{Status: DependencyDown, Latency: ProbeFailedLatency, Err: fmt.Errorf("http get: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ProbeResult{
			Status:     DependencyDegraded,
			Latency:    elapsed,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected HTTP %d", resp.StatusCode),
		}
	}
	return ProbeResult{Status: DependencyUp, Latency: elapsed, StatusCode: resp.StatusCode}
}

func (p *HTTPProber) client(t Target) (*http.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, ok := p.clients[t.Name]
	if ok && prev.target == t {
		return prev.client, nil
	}
	if ok {
		prev.client.CloseIdleConnections()
		delete(p.clients, t.Name)
	}
	c, err := buildHTTPClient(t)
	if err != nil {
		return nil, fmt.Errorf("dependency %q: build http client: %w", t.Name, err)
	}
	p.clients[t.Name] = cachedClient{target: t, client: c}
	return c, nil
}

// Forget drops the client cached for the named dependency and closes its
// idle connections.
func (p *HTTPProber) Forget(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[name]; ok {
		c.client.CloseIdleConnections()
		delete(p.clients, name)
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth Auth
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key)
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token)
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password)
	}
	return t.base.RoundTrip(req)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the
// wrapped transport.
func (t *authRoundTripper) CloseIdleConnections() {
	if c, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// buildHTTPClient constructs an http.Client for the target's auth and TLS
// settings. It sets no client timeout; probes are bounded by their context.
func buildHTTPClient(t Target) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: t.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if t.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(t.Auth.CertFile, t.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if t.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(t.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", t.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: t.Auth,
		},
	}, nil
}
