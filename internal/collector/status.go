package collector

import (
	"errors"
	"fmt"

	"github.com/mittelab/prometheus-pve-exporter/pkg/model"
)

// ErrUnsupportedResourceKind is matched by errors.Is on UnsupportedKindError.
var ErrUnsupportedResourceKind = errors.New("unsupported resource kind")

// UnsupportedKindError reports a status record whose type has no liveness
// rule. It means the upstream API changed and fails the scrape.
type UnsupportedKindError struct {
	Kind model.Kind
	ID   string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("got unexpected status entry type %q (id %q)", e.Kind, e.ID)
}

// Is makes errors.Is(err, ErrUnsupportedResourceKind) succeed.
func (e *UnsupportedKindError) Is(target error) bool {
	return target == ErrUnsupportedResourceKind
}

var upKinds = map[model.Kind]struct{}{
	model.KindQemu:    {},
	model.KindLXC:     {},
	model.KindNode:    {},
	model.KindStorage: {},
	model.KindVM:      {},
	model.KindCluster: {},
}

var upStatuses = map[string]struct{}{
	"available": {},
	"online":    {},
	"running":   {},
}

// IsUp reports whether r describes a live entity. Cluster records report
// liveness through "quorate", nodes through "online", guests and storage
// through "status"; all three are checked for every kind.
func IsUp(r model.Record) (bool, error) {
	kind := r.Kind()
	if _, ok := upKinds[kind]; !ok {
		return false, &UnsupportedKindError{Kind: kind, ID: Downcast(r.Get("id"))}
	}

	if r.Truthy("quorate") || r.Truthy("online") {
		return true, nil
	}
	status, _ := r.String("status")
	_, up := upStatuses[status]
	return up, nil
}

// StatusCollector emits pve_up once per entity across /cluster/resources
// and /cluster/status. When both endpoints describe the same entity the
// resources record wins.
type StatusCollector struct{}

// NewStatusCollector creates a StatusCollector.
func NewStatusCollector() *StatusCollector { return &StatusCollector{} }

// Name returns the collector name.
func (c *StatusCollector) Name() string { return "status" }

// Collect implements Collector.
func (c *StatusCollector) Collect(snap *Snapshot) ([]*Family, error) {
	up := NewFamily("pve_up", "Node/VM/CT-Status is online/running", KnownLabels)

	seen := make(map[string]struct{}, len(snap.Resources)+len(snap.Status))
	for _, batch := range [][]model.Record{snap.Resources, snap.Status} {
		for _, r := range batch {
			labels := DeriveLabels(r, KnownLabels)
			id := labels.Identity()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			isUp, err := IsUp(r)
			if err != nil {
				return nil, fmt.Errorf("status: %w", err)
			}
			up.Add(labels.Values(KnownLabels), boolToFloat(isUp))
		}
	}

	return []*Family{up}, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
