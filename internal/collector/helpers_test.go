package collector

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mittelab/prometheus-pve-exporter/pkg/model"
)

// records decodes a JSON array the way the API client does.
func records(t *testing.T, s string) []model.Record {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out []model.Record
	require.NoError(t, dec.Decode(&out))
	return out
}

func record(t *testing.T, s string) model.Record {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out model.Record
	require.NoError(t, dec.Decode(&out))
	return out
}

// fakeAPI serves canned records and counts calls.
type fakeAPI struct {
	resources []model.Record
	status    []model.Record
	version   model.Record

	resourcesErr error
	statusErr    error
	versionErr   error

	calls atomic.Int32
}

func (f *fakeAPI) ClusterResources(_ context.Context) ([]model.Record, error) {
	f.calls.Add(1)
	return f.resources, f.resourcesErr
}

func (f *fakeAPI) ClusterStatus(_ context.Context) ([]model.Record, error) {
	f.calls.Add(1)
	return f.status, f.statusErr
}

func (f *fakeAPI) Version(_ context.Context) (model.Record, error) {
	f.calls.Add(1)
	return f.version, f.versionErr
}

// sampleByID finds the sample whose first label value (id) matches.
func sampleByID(f *Family, id string) (Sample, bool) {
	for _, s := range f.Samples {
		if len(s.LabelValues) > 0 && s.LabelValues[0] == id {
			return s, true
		}
	}
	return Sample{}, false
}

// familyByName indexes families returned by a collector.
func familyByName(families []*Family) map[string]*Family {
	out := make(map[string]*Family, len(families))
	for _, f := range families {
		out[f.Name] = f
	}
	return out
}
