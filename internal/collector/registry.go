package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"golang.org/x/sync/errgroup"

	"github.com/mittelab/prometheus-pve-exporter/internal/observability"
)

// Registry holds the ordered collector list run by every scrape. It is
// thread-safe: Register and Scrape can be called from different goroutines,
// and concurrent scrapes share no state.
type Registry struct {
	collectors []Collector
	metrics    *observability.Metrics
	mu         sync.Mutex
}

// NewRegistry creates a new, empty Registry. metrics may be nil.
func NewRegistry(metrics *observability.Metrics) *Registry {
	return &Registry{metrics: metrics}
}

// NewDefaultRegistry creates a Registry with the standard collectors in
// exposition order.
func NewDefaultRegistry(metrics *observability.Metrics) *Registry {
	r := NewRegistry(metrics)
	r.Register(NewStatusCollector())
	r.Register(NewClusterResourcesCollector())
	r.Register(NewNodeInfoCollector(metrics))
	r.Register(NewClusterInfoCollector(metrics))
	r.Register(NewVersionCollector())
	return r
}

// Register adds a collector to the registry.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, c)
}

// Collectors returns the registered collectors.
func (r *Registry) Collectors() []Collector {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Collector, len(r.collectors))
	copy(out, r.collectors)
	return out
}

// Fetch reads the three API queries a scrape needs in parallel. The first
// API error is returned as is.
func Fetch(ctx context.Context, api API) (*Snapshot, error) {
	snap := &Snapshot{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := api.ClusterResources(gctx)
		snap.Resources = res
		return err
	})
	g.Go(func() error {
		res, err := api.ClusterStatus(gctx)
		snap.Status = res
		return err
	})
	g.Go(func() error {
		res, err := api.Version(gctx)
		snap.Version = res
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Scrape fetches a snapshot from api and runs every collector over it in
// registration order. Any error fails the whole scrape; no partial result
// is returned.
func (r *Registry) Scrape(ctx context.Context, api API) (*Result, error) {
	snap, err := Fetch(ctx, api)
	if err != nil {
		return nil, err
	}
	return r.Collect(snap)
}

// Collect runs every collector over an already fetched snapshot.
func (r *Registry) Collect(snap *Snapshot) (*Result, error) {
	res := &Result{}
	for _, c := range r.Collectors() {
		start := time.Now()
		families, err := c.Collect(snap)
		if r.metrics != nil {
			r.metrics.CollectorDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			return nil, fmt.Errorf("collector %s: %w", c.Name(), err)
		}
		res.Families = append(res.Families, families...)
	}
	return res, nil
}

// Result is the output of one scrape. It implements prometheus.Gatherer so
// promhttp can serve it directly.
type Result struct {
	Families []*Family
}

// Family returns the family with the given name, or nil.
func (r *Result) Family(name string) *Family {
	for _, f := range r.Families {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Gather implements prometheus.Gatherer. It does not go through a
// prometheus.Registry, which would reject the duplicate series the cluster
// resources collector is allowed to emit.
//
// Families without samples are left out even though the cluster resources
// collector returns all of its families, empty ones included. The text
// exposition format has no form for a family without samples. Keep the
// empty families in Collect and drop them only here.
func (r *Result) Gather() ([]*dto.MetricFamily, error) {
	out := make([]*dto.MetricFamily, 0, len(r.Families))
	for _, f := range r.Families {
		if len(f.Samples) == 0 {
			continue
		}
		mf, err := f.ToProto()
		if err != nil {
			return nil, err
		}
		out = append(out, mf)
	}
	return out, nil
}
