package collector

import (
	"log/slog"

	"github.com/mittelab/prometheus-pve-exporter/pkg/model"
)

// FieldMetric routes one numeric record field into a gauge family.
type FieldMetric struct {
	Field string
	Name  string
	Help  string
}

// InfoMetric emits a sample valued 1 for every record of the listed kinds.
type InfoMetric struct {
	Name  string
	Help  string
	Kinds []model.Kind
}

// ResourceMetrics is the field routing table for /cluster/resources, in
// emission order. Treat it as read-only.
var ResourceMetrics = []FieldMetric{
	{Field: "maxdisk", Name: "pve_disk_size_bytes", Help: "Size of storage device"},
	{Field: "disk", Name: "pve_disk_usage_bytes", Help: "Disk usage in bytes"},
	{Field: "maxmem", Name: "pve_memory_size_bytes", Help: "Size of memory"},
	{Field: "mem", Name: "pve_memory_usage_bytes", Help: "Memory usage in bytes"},
	{Field: "netout", Name: "pve_network_transmit_bytes", Help: "Number of bytes transmitted over the network"},
	{Field: "netin", Name: "pve_network_receive_bytes", Help: "Number of bytes received over the network"},
	{Field: "diskwrite", Name: "pve_disk_write_bytes", Help: "Number of bytes written to storage"},
	{Field: "diskread", Name: "pve_disk_read_bytes", Help: "Number of bytes read from storage"},
	{Field: "cpu", Name: "pve_cpu_usage_ratio", Help: "CPU usage (value between 0.0 and pve_cpu_usage_limit)"},
	{Field: "maxcpu", Name: "pve_cpu_usage_limit", Help: "Maximum allowed CPU usage"},
	{Field: "uptime", Name: "pve_uptime_seconds", Help: "Number of seconds since the last boot"},
}

// ResourceInfoMetrics is the info routing table for /cluster/resources.
// Treat it as read-only.
var ResourceInfoMetrics = []InfoMetric{
	{Name: "pve_guest_info", Help: "VM/CT info", Kinds: []model.Kind{model.KindLXC, model.KindQemu}},
	{Name: "pve_storage_info", Help: "Storage info", Kinds: []model.Kind{model.KindStorage}},
}

// ClusterResourcesCollector emits the usage and info families for every
// record of /cluster/resources. Records are not deduplicated.
type ClusterResourcesCollector struct {
	fields []FieldMetric
	infos  []InfoMetric
}

// NewClusterResourcesCollector creates a collector over the default routing
// tables.
func NewClusterResourcesCollector() *ClusterResourcesCollector {
	return &ClusterResourcesCollector{fields: ResourceMetrics, infos: ResourceInfoMetrics}
}

// Name returns the collector name.
func (c *ClusterResourcesCollector) Name() string { return "cluster_resources" }

// Collect implements Collector. Every declared family is returned, including
// the ones no record contributed to.
func (c *ClusterResourcesCollector) Collect(snap *Snapshot) ([]*Family, error) {
	byField := make(map[string]*Family, len(c.fields))
	families := make([]*Family, 0, len(c.fields)+len(c.infos))
	for _, fm := range c.fields {
		f := NewFamily(fm.Name, fm.Help, KnownLabels)
		byField[fm.Field] = f
		families = append(families, f)
	}

	byKind := make(map[model.Kind]*Family)
	for _, im := range c.infos {
		f := NewFamily(im.Name, im.Help, KnownLabels)
		for _, k := range im.Kinds {
			byKind[k] = f
		}
		families = append(families, f)
	}

	for _, r := range snap.Resources {
		values := DeriveLabels(r, KnownLabels).Values(KnownLabels)

		if info, ok := byKind[r.Kind()]; ok {
			info.Add(values, 1)
		}

		for _, fm := range c.fields {
			if !r.Has(fm.Field) {
				continue
			}
			v, ok := r.Float(fm.Field)
			if !ok {
				slog.Debug("skipping non-numeric resource field",
					"field", fm.Field,
					"id", values[0],
				)
				continue
			}
			byField[fm.Field].Add(values, v)
		}
	}

	return families, nil
}
