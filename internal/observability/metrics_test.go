package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics_NoRegistrationPanic(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.Registry == nil {
		t.Fatal("Registry is nil")
	}
}

func TestNewMetrics_CustomRegistry(t *testing.T) {
	m := NewMetrics()
	m.ScrapesTotal.WithLabelValues("success").Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	defaultFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("DefaultGatherer.Gather failed: %v", err)
	}

	customNames := make(map[string]bool)
	for _, f := range families {
		customNames[f.GetName()] = true
	}

	for _, f := range defaultFamilies {
		if customNames[f.GetName()] {
			t.Errorf("metric %q found in default registry, expected only in custom registry", f.GetName())
		}
	}
}

func TestNewMetrics_AllNamesHavePrefix(t *testing.T) {
	m := NewMetrics()
	m.ScrapeDuration.WithLabelValues("default").Observe(0.2)
	m.ScrapesTotal.WithLabelValues("error").Inc()
	m.CollectorDuration.WithLabelValues("status").Observe(0.001)
	m.SchemaDivergenceTotal.WithLabelValues("node_info").Inc()
	m.APIRequestDuration.WithLabelValues("/version").Observe(0.05)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	if len(families) != 6 {
		t.Fatalf("gathered %d families, want 6", len(families))
	}

	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "pve_exporter_") {
			t.Errorf("metric %q does not start with pve_exporter_ prefix", f.GetName())
		}
	}
}

func TestNewMetrics_CounterIncrement(t *testing.T) {
	m := NewMetrics()

	m.APIResponseBytes.Add(512)

	pb := &dto.Metric{}
	if err := m.APIResponseBytes.Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 512 {
		t.Errorf("APIResponseBytes = %v, want 512", got)
	}

	m.ScrapesTotal.WithLabelValues("success").Inc()
	m.ScrapesTotal.WithLabelValues("success").Inc()
	m.ScrapesTotal.WithLabelValues("error").Inc()

	pb = &dto.Metric{}
	if err := m.ScrapesTotal.WithLabelValues("success").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 2 {
		t.Errorf("ScrapesTotal(success) = %v, want 2", got)
	}
}

func TestNewMetrics_HistogramObserve(t *testing.T) {
	m := NewMetrics()

	m.ScrapeDuration.WithLabelValues("default").Observe(0.5)
	m.ScrapeDuration.WithLabelValues("default").Observe(1.5)

	pb := &dto.Metric{}
	if err := m.ScrapeDuration.WithLabelValues("default").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("ScrapeDuration(default) sample count = %v, want 2", got)
	}

	m.APIRequestDuration.WithLabelValues("/cluster/resources").Observe(0.1)
	pb = &dto.Metric{}
	if err := m.APIRequestDuration.WithLabelValues("/cluster/resources").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("APIRequestDuration sample count = %v, want 1", got)
	}
}

func TestNewMetrics_NoDuplicateRegistrationPanic(t *testing.T) {
	// Each instance uses its own registry.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("creating Metrics twice panicked: %v", r)
		}
	}()

	_ = NewMetrics()
	_ = NewMetrics()
}

func TestNewMetrics_AllFieldsNonNil(t *testing.T) {
	m := NewMetrics()

	if m.ScrapeDuration == nil {
		t.Error("ScrapeDuration is nil")
	}
	if m.ScrapesTotal == nil {
		t.Error("ScrapesTotal is nil")
	}
	if m.CollectorDuration == nil {
		t.Error("CollectorDuration is nil")
	}
	if m.SchemaDivergenceTotal == nil {
		t.Error("SchemaDivergenceTotal is nil")
	}
	if m.APIRequestDuration == nil {
		t.Error("APIRequestDuration is nil")
	}
	if m.APIResponseBytes == nil {
		t.Error("APIResponseBytes is nil")
	}
}
