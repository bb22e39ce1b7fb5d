package exporter

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mittelab/prometheus-pve-exporter/internal/collector"
	"github.com/mittelab/prometheus-pve-exporter/internal/config"
	"github.com/mittelab/prometheus-pve-exporter/internal/errors"
	"github.com/mittelab/prometheus-pve-exporter/internal/observability"
	"github.com/mittelab/prometheus-pve-exporter/internal/pveapi"
)

// ErrUnknownModule is returned by Scrape when the requested module is not
// configured.
var ErrUnknownModule = stderrors.New("unknown module")

// Client cache defaults, used when the config leaves them unset.
const (
	DefaultClientCacheSize = 128
	DefaultClientCacheTTL  = 15 * time.Minute
)

// APIFactory builds the API client for one (target, module) pair.
type APIFactory func(target string, module config.Module) (collector.API, error)

// idleCloser is implemented by API clients that pool connections.
type idleCloser interface {
	CloseIdleConnections()
}

// Exporter is the main orchestrator: it resolves a scrape request to an API
// client, runs the collector registry against it, and records the outcome.
type Exporter struct {
	config         *config.Config
	registry       *collector.Registry
	errorCollector *errors.ErrorCollector
	metrics        *observability.Metrics
	newAPI         APIFactory

	// clients holds the API clients of recently successful scrapes, keyed by
	// module + "|" + target. mu guards the check-then-add sequences on it.
	mu      sync.Mutex
	clients *expirable.LRU[string, collector.API]
}

// NewExporter creates an Exporter with all required dependencies.
func NewExporter(
	cfg *config.Config,
	registry *collector.Registry,
	errCollector *errors.ErrorCollector,
	metrics *observability.Metrics,
) *Exporter {
	size, ttl := cfg.ClientCacheSize, cfg.ClientCacheTTL
	if size <= 0 {
		size = DefaultClientCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultClientCacheTTL
	}

	e := &Exporter{
		config:         cfg,
		registry:       registry,
		errorCollector: errCollector,
		metrics:        metrics,
		clients: expirable.NewLRU[string, collector.API](size, func(_ string, api collector.API) {
			closeIdle(api)
		}, ttl),
	}
	e.newAPI = func(target string, module config.Module) (collector.API, error) {
		return pveapi.NewClient(target, module, metrics)
	}
	return e
}

// IsReady reports whether the exporter can serve scrapes. Implements
// server.ReadinessChecker.
func (e *Exporter) IsReady() bool {
	return len(e.config.Modules) > 0
}

// Modules returns the configured module names.
func (e *Exporter) Modules() []string {
	names := make([]string, 0, len(e.config.Modules))
	for name := range e.config.Modules {
		names = append(names, name)
	}
	return names
}

// Scrape collects every metric family for target with the credentials of
// moduleName. A failed scrape returns no partial result.
func (e *Exporter) Scrape(ctx context.Context, moduleName, target string) (*collector.Result, error) {
	module, ok := e.config.Modules[moduleName]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownModule, moduleName)
	}

	logger := slog.With(
		"scrape_id", uuid.NewString(),
		"target", target,
		"module", moduleName,
	)

	if e.config.ScrapeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ScrapeTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.scrape(ctx, moduleName, module, target)
	elapsed := time.Since(start)

	if e.metrics != nil {
		e.metrics.ScrapeDuration.WithLabelValues(moduleName).Observe(elapsed.Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		e.metrics.ScrapesTotal.WithLabelValues(status).Inc()
	}

	if err != nil {
		code := Classify(err)
		if e.errorCollector != nil {
			e.errorCollector.Report(errors.ScrapeError{
				Code:      code,
				Message:   err.Error(),
				Target:    target,
				Module:    moduleName,
				Timestamp: time.Now().UnixMilli(),
				Err:       err,
			})
		}
		logger.Warn("scrape failed",
			"code", code,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	if e.errorCollector != nil {
		e.errorCollector.Resolve(target)
	}
	logger.Debug("scrape completed",
		"families", len(result.Families),
		"duration_ms", elapsed.Milliseconds(),
		"cached_clients", e.CachedClients(),
	)
	return result, nil
}

func (e *Exporter) scrape(ctx context.Context, moduleName string, module config.Module, target string) (*collector.Result, error) {
	key := moduleName + "|" + target

	api, cached := e.clients.Get(key)
	if !cached {
		var err error
		api, err = e.newAPI(target, module)
		if err != nil {
			return nil, err
		}
	}

	result, err := e.registry.Scrape(ctx, api)
	e.release(key, api, err == nil)
	return result, err
}

// release decides whether api stays cached after a scrape. Only clients of
// successful scrapes are kept, so requests for arbitrary unreachable targets
// do not accumulate; a failure evicts the client and its ticket.
func (e *Exporter) release(key string, api collector.API, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, exists := e.clients.Peek(key)
	switch {
	case !ok && exists && current == api:
		e.clients.Remove(key) // closes idle connections via the evict callback
	case !ok:
		closeIdle(api)
	case exists && current != api:
		// A concurrent scrape cached its own client first.
		closeIdle(api)
	case !exists:
		e.clients.Add(key, api)
	}
}

// CachedClients returns the number of API clients currently cached.
func (e *Exporter) CachedClients() int {
	return e.clients.Len()
}

func closeIdle(api collector.API) {
	if c, ok := api.(idleCloser); ok {
		c.CloseIdleConnections()
	}
}

// Classify maps a scrape error to the code reported on /debug/errors.
func Classify(err error) errors.Code {
	var netErr net.Error
	var urlErr *url.Error

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrTimeout
	case stderrors.As(err, &netErr) && netErr.Timeout():
		return errors.ErrTimeout
	case pveapi.IsAuthError(err):
		return errors.ErrAuthFailed
	case stderrors.Is(err, collector.ErrUnsupportedResourceKind):
		return errors.ErrUnsupportedResourceKind
	case stderrors.Is(err, collector.ErrNoVersionLabels):
		return errors.ErrVersionUnlabeled
	case stderrors.As(err, &urlErr):
		return errors.ErrAPIUnreachable
	default:
		return errors.ErrScrapeFailed
	}
}
