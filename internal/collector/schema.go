package collector

import (
	"log/slog"

	"github.com/mittelab/prometheus-pve-exporter/internal/observability"
	"github.com/mittelab/prometheus-pve-exporter/pkg/model"
)

// SchemaCollector emits one info sample per /cluster/status record of a
// single kind. The label names are not known in advance: they are the field
// names of the first matching record, sorted, after bookkeeping fields are
// dropped.
//
// Later records are rendered against that schema. A field missing from a
// later record renders as ""; a field the first record did not have is
// ignored. Each such record is counted as a schema divergence.
type SchemaCollector struct {
	name    string
	metric  string
	help    string
	kind    model.Kind
	drop    []string
	rewrite func(model.Record) model.Record
	metrics *observability.Metrics
}

// NewNodeInfoCollector creates the pve_node_info collector.
func NewNodeInfoCollector(metrics *observability.Metrics) *SchemaCollector {
	return &SchemaCollector{
		name:    "node_info",
		metric:  "pve_node_info",
		help:    "Node info",
		kind:    model.KindNode,
		drop:    []string{"type", "online"},
		metrics: metrics,
	}
}

// NewClusterInfoCollector creates the pve_cluster_info collector. The
// cluster "name" becomes "id" = "cluster/<name>", matching pve_up.
func NewClusterInfoCollector(metrics *observability.Metrics) *SchemaCollector {
	return &SchemaCollector{
		name:   "cluster_info",
		metric: "pve_cluster_info",
		help:   "Cluster info",
		kind:   model.KindCluster,
		drop:   []string{"type"},
		rewrite: func(r model.Record) model.Record {
			r["id"] = ClusterID(r.Get("name"))
			delete(r, "name")
			return r
		},
		metrics: metrics,
	}
}

// Name returns the collector name.
func (c *SchemaCollector) Name() string { return c.name }

// Collect implements Collector. It returns no family when no record of the
// collector's kind exists.
func (c *SchemaCollector) Collect(snap *Snapshot) ([]*Family, error) {
	var records []model.Record
	for _, r := range snap.Status {
		if r.Kind() != c.kind {
			continue
		}
		rec := r.Without(c.drop...)
		if c.rewrite != nil {
			rec = c.rewrite(rec)
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, nil
	}

	schema := records[0].Keys()
	family := NewFamily(c.metric, c.help, schema)

	for i, r := range records {
		if i > 0 && diverges(schema, r) {
			c.reportDivergence(r)
		}
		values := make([]string, len(schema))
		for j, name := range schema {
			values[j] = Downcast(r.Get(name))
		}
		family.Add(values, 1)
	}

	return []*Family{family}, nil
}

func (c *SchemaCollector) reportDivergence(r model.Record) {
	slog.Warn("record fields differ from batch schema",
		"collector", c.name,
		"id", Downcast(r.Get("id")),
	)
	if c.metrics != nil {
		c.metrics.SchemaDivergenceTotal.WithLabelValues(c.name).Inc()
	}
}

// diverges reports whether r's field set differs from schema.
func diverges(schema []string, r model.Record) bool {
	if len(r) != len(schema) {
		return true
	}
	for _, name := range schema {
		if _, ok := r[name]; !ok {
			return true
		}
	}
	return false
}
