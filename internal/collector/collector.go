package collector

import (
	"context"

	"github.com/mittelab/prometheus-pve-exporter/pkg/model"
)

// API is the subset of the Proxmox VE API a scrape reads. Implementations
// must be safe for concurrent use; Registry.Scrape calls all three methods
// in parallel.
type API interface {
	ClusterResources(ctx context.Context) ([]model.Record, error)
	ClusterStatus(ctx context.Context) ([]model.Record, error)
	Version(ctx context.Context) (model.Record, error)
}

// Snapshot is the raw API data fetched for one scrape. Collectors read it
// and must not mutate the records.
type Snapshot struct {
	Resources []model.Record
	Status    []model.Record
	Version   model.Record
}

// Collector is the interface that all metric collectors implement.
type Collector interface {
	// Name returns the collector's name (e.g., "status", "node_info").
	Name() string
	// Collect turns the snapshot into metric families. An error fails the
	// whole scrape.
	Collect(snap *Snapshot) ([]*Family, error)
}
