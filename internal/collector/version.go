package collector

import (
	"errors"
	"sort"
)

// ErrNoVersionLabels is returned when the version record carries none of the
// allow-listed fields.
var ErrNoVersionLabels = errors.New("version record has no release, repoid or version field")

// VersionLabels is the allow-list of /version fields exposed as labels.
var VersionLabels = []string{"release", "repoid", "version"}

// VersionCollector emits pve_version_info.
type VersionCollector struct{}

// NewVersionCollector creates a VersionCollector.
func NewVersionCollector() *VersionCollector { return &VersionCollector{} }

// Name returns the collector name.
func (c *VersionCollector) Name() string { return "version" }

// Collect implements Collector.
func (c *VersionCollector) Collect(snap *Snapshot) ([]*Family, error) {
	var names []string
	for _, name := range VersionLabels {
		if _, ok := snap.Version[name]; ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, ErrNoVersionLabels
	}
	sort.Strings(names)

	values := make([]string, len(names))
	for i, name := range names {
		values[i] = Downcast(snap.Version.Get(name))
	}

	f := NewFamily("pve_version_info", "Proxmox VE version info", names)
	f.Add(values, 1)
	return []*Family{f}, nil
}
