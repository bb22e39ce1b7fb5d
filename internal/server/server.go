package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"sort"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mittelab/prometheus-pve-exporter/internal/collector"
	"github.com/mittelab/prometheus-pve-exporter/internal/config"
	"github.com/mittelab/prometheus-pve-exporter/internal/errors"
	"github.com/mittelab/prometheus-pve-exporter/internal/exporter"
	"github.com/mittelab/prometheus-pve-exporter/internal/observability"
)

// DefaultTarget is scraped when a /pve request names no target.
const DefaultTarget = "localhost"

const (
	defaultWriteTimeout = 2 * time.Minute
	// writeHeadroom covers serializing and compressing a scrape result.
	writeHeadroom = 30 * time.Second
)

// Scraper runs one scrape of target with the named module.
type Scraper interface {
	Scrape(ctx context.Context, module, target string) (*collector.Result, error)
}

// ReadinessChecker reports whether the exporter is ready to serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// ErrorSource returns the recent scrape failures for debugging.
type ErrorSource interface {
	GetActiveErrors() []errors.ScrapeError
}

// Server exposes the scrape, health, readiness, metrics, and debug endpoints.
type Server struct {
	httpServer *http.Server
	metrics    *observability.Metrics
	scraper    Scraper
	readiness  ReadinessChecker
	errors     ErrorSource
	listener   net.Listener
}

// NewServer creates a new server on address:port.
// Pass port=0 to let the OS pick a free port (useful for tests).
// The write deadline leaves room for a full scrapeTimeout.
// When enableDebug is true, pprof and debug endpoints are registered.
func NewServer(address string, port int, scrapeTimeout time.Duration, metrics *observability.Metrics, scraper Scraper, readiness ReadinessChecker, errs ErrorSource, enableDebug bool) *Server {
	s := &Server{
		metrics:   metrics,
		scraper:   scraper,
		readiness: readiness,
		errors:    errs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.handleIndex)
	mux.Handle("/pve", gzhttp.GzipHandler(http.HandlerFunc(s.handlePVE)))
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if enableDebug {
		// pprof handlers, only enabled when PVE_EXPORTER_DEBUG_ENDPOINTS=true
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		mux.HandleFunc("/debug/errors", s.handleDebugErrors)
	}

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(address, strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout(scrapeTimeout),
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s
}

// writeTimeout returns the response deadline for a server whose scrapes may
// run for scrapeTimeout.
func writeTimeout(scrapeTimeout time.Duration) time.Duration {
	if scrapeTimeout <= 0 {
		return defaultWriteTimeout
	}
	return scrapeTimeout + writeHeadroom
}

// Addr returns the listen address; after Start it is the bound address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins listening and serving HTTP in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	s.listener = ln
	// Update Addr to the actual address (important when port=0).
	s.httpServer.Addr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("server exited", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handlePVE(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	target := query.Get("target")
	if target == "" {
		target = DefaultTarget
	}
	module := query.Get("module")
	if module == "" {
		module = config.DefaultModule
	}

	result, err := s.scraper.Scrape(r.Context(), module, target)
	if err != nil {
		status := http.StatusInternalServerError
		if stderrors.Is(err, exporter.ErrUnknownModule) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	// gzhttp owns response compression for this endpoint.
	promhttp.HandlerFor(result, promhttp.HandlerOpts{
		ErrorHandling:      promhttp.HTTPErrorOnError,
		DisableCompression: true,
	}).ServeHTTP(w, r)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Proxmox VE Exporter</title></head>
<body>
<h1>Proxmox VE Exporter</h1>
<p>Visit <code>/pve?target=1.2.3.4</code> to use.</p>
<ul>
<li><a href="/pve?target={{.Target}}">/pve?target={{.Target}}</a></li>
<li><a href="/metrics">/metrics</a></li>
</ul>
{{if .Modules}}<p>Modules: {{range $i, $m := .Modules}}{{if $i}}, {{end}}<code>{{$m}}</code>{{end}}</p>{{end}}
</body>
</html>
`))

// ModuleLister is implemented by scrapers that can list their modules for
// the index page.
type ModuleLister interface {
	Modules() []string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	var modules []string
	if ml, ok := s.scraper.(ModuleLister); ok {
		modules = ml.Modules()
		sort.Strings(modules)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = indexTemplate.Execute(w, struct {
		Target  string
		Modules []string
	}{Target: DefaultTarget, Modules: modules})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ready := s.readiness.IsReady()
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}

func (s *Server) handleDebugErrors(w http.ResponseWriter, _ *http.Request) {
	active := s.errors.GetActiveErrors()
	sort.Slice(active, func(i, j int) bool {
		if active[i].Target != active[j].Target {
			return active[i].Target < active[j].Target
		}
		return active[i].Code < active[j].Code
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(active)
}
