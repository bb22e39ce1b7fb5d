package pveapi

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/mittelab/prometheus-pve-exporter/internal/config"
	"github.com/mittelab/prometheus-pve-exporter/internal/observability"
	"github.com/mittelab/prometheus-pve-exporter/pkg/model"
)

// DefaultPort is the port of the Proxmox VE API daemon.
const DefaultPort = "8006"

// apiPrefix is the path every JSON API endpoint lives under.
const apiPrefix = "/api2/json"

// Client reads cluster state from one Proxmox VE API endpoint. It is safe
// for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	base       *http.Transport
	metrics    *observability.Metrics
}

// NewClient creates a Client for target using the credentials of module.
// metrics may be nil.
func NewClient(target string, module config.Module, metrics *observability.Metrics) (*Client, error) {
	baseURL, err := BaseURL(target)
	if err != nil {
		return nil, err
	}

	// Use an explicit transport instead of http.DefaultTransport: TLS
	// verification is a per-module setting.
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !module.VerifiesTLS(),
		},
	}

	// pveproxy compresses JSON responses when asked to.
	transport := gzhttp.Transport(base)

	if module.UsesToken() {
		transport = WithAuth(module.User, module.TokenName, module.TokenValue, transport)
	} else {
		transport = WithTicket(baseURL+"/access/ticket", module.User, module.Password, transport)
	}

	transport = WithLogging(slog.Default().With("target", target), transport)

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   module.Timeout.Duration,
			Transport: transport,
		},
		base:    base,
		metrics: metrics,
	}, nil
}

// CloseIdleConnections closes the pooled connections to the target. The
// middleware chain hides the transport from http.Client, so it is reached
// directly.
func (c *Client) CloseIdleConnections() {
	c.base.CloseIdleConnections()
}

// BaseURL turns a scrape target into the API base URL. A bare host gets
// scheme https and port 8006; a full URL is used as is, with /api2/json
// appended when its path is empty.
func BaseURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("pveapi: empty target")
	}

	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("pveapi: invalid target %q: %w", target, err)
		}
		if u.Host == "" {
			return "", fmt.Errorf("pveapi: invalid target %q: missing host", target)
		}
		path := strings.TrimRight(u.Path, "/")
		if path == "" {
			path = apiPrefix
		}
		return u.Scheme + "://" + u.Host + path, nil
	}

	host, port, err := net.SplitHostPort(target)
	if err != nil {
		host, port = strings.Trim(target, "[]"), DefaultPort
	}
	return "https://" + net.JoinHostPort(host, port) + apiPrefix, nil
}

// ClusterResources returns GET /cluster/resources.
func (c *Client) ClusterResources(ctx context.Context) ([]model.Record, error) {
	var env model.Envelope[[]model.Record]
	if err := c.get(ctx, "/cluster/resources", &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// ClusterStatus returns GET /cluster/status.
func (c *Client) ClusterStatus(ctx context.Context) ([]model.Record, error) {
	var env model.Envelope[[]model.Record]
	if err := c.get(ctx, "/cluster/status", &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Version returns GET /version.
func (c *Client) Version(ctx context.Context) (model.Record, error) {
	var env model.Envelope[model.Record]
	if err := c.get(ctx, "/version", &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("pveapi: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(path, start, 0)
		return fmt.Errorf("pveapi: GET %s failed: %w", path, err)
	}

	n, err := parseResponse(resp, path, v)
	c.observe(path, start, n)
	return err
}

func (c *Client) observe(path string, start time.Time, n int64) {
	if c.metrics == nil {
		return
	}
	c.metrics.APIRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if n > 0 {
		c.metrics.APIResponseBytes.Add(float64(n))
	}
}
