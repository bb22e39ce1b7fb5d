package collector

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

// Sample is one gauge value with label values ordered like its family's
// LabelNames.
type Sample struct {
	LabelValues []string
	Value       float64
}

// Family is a gauge metric family built during one scrape. Every sample
// carries the same label names in the same order.
type Family struct {
	Name       string
	Help       string
	LabelNames []string
	Samples    []Sample
}

// NewFamily creates an empty gauge family.
func NewFamily(name, help string, labelNames []string) *Family {
	names := make([]string, len(labelNames))
	copy(names, labelNames)
	return &Family{Name: name, Help: help, LabelNames: names}
}

// Add appends a sample. It panics when the number of label values does not
// match the family's label names, like prometheus.MustNewConstMetric.
func (f *Family) Add(labelValues []string, value float64) {
	if len(labelValues) != len(f.LabelNames) {
		panic(fmt.Sprintf("collector: %s: inconsistent label cardinality: expected %d label values but got %d",
			f.Name, len(f.LabelNames), len(labelValues)))
	}
	lv := make([]string, len(labelValues))
	copy(lv, labelValues)
	f.Samples = append(f.Samples, Sample{LabelValues: lv, Value: value})
}

// Desc returns the descriptor shared by every sample of the family.
func (f *Family) Desc() *prometheus.Desc {
	return prometheus.NewDesc(f.Name, f.Help, f.LabelNames, nil)
}

// ToProto converts the family to its client_model form. Samples go through
// prometheus.NewConstMetric, so invalid label names and values are reported
// as errors. Label pairs come out sorted by name. Duplicate series are kept.
func (f *Family) ToProto() (*dto.MetricFamily, error) {
	desc := f.Desc()
	mf := &dto.MetricFamily{
		Name:   proto.String(f.Name),
		Help:   proto.String(f.Help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: make([]*dto.Metric, 0, len(f.Samples)),
	}
	for _, s := range f.Samples {
		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, s.Value, s.LabelValues...)
		if err != nil {
			return nil, fmt.Errorf("collector: %s: %w", f.Name, err)
		}
		pb := &dto.Metric{}
		if err := m.Write(pb); err != nil {
			return nil, fmt.Errorf("collector: %s: %w", f.Name, err)
		}
		mf.Metric = append(mf.Metric, pb)
	}
	return mf, nil
}
