package collector

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/mittelab/prometheus-pve-exporter/pkg/model"
)

// KnownLabels are the labels attached to every per-resource sample, in
// exposition order.
var KnownLabels = []string{"id", "name", "node", "template", "type"}

// LabelSet maps label names to raw record values. Render values with
// Values; nil renders as the empty string.
type LabelSet map[string]any

// normalizer rewrites label values for one record kind after the generic
// field copy. Only labels already present in the set are touched.
type normalizer func(r model.Record, labels LabelSet)

// normalizers holds the per-kind identity rules. Storage and node records
// carry no "name" field; cluster records from /cluster/status carry no "id".
var normalizers = map[model.Kind]normalizer{
	model.KindStorage: func(r model.Record, labels LabelSet) {
		if _, ok := labels["name"]; ok {
			labels["name"] = r.Get("storage")
		}
	},
	model.KindNode: func(r model.Record, labels LabelSet) {
		if _, ok := labels["name"]; ok {
			labels["name"] = r.Get("node")
		}
	},
	model.KindCluster: func(r model.Record, labels LabelSet) {
		if _, ok := labels["id"]; ok {
			labels["id"] = ClusterID(r.Get("name"))
		}
	},
}

// ClusterID builds the identity of a cluster record from its name.
func ClusterID(name any) string {
	return "cluster/" + Downcast(name)
}

// DeriveLabels extracts labelNames from r and applies the kind-specific
// identity rules. A nil labelNames means KnownLabels.
func DeriveLabels(r model.Record, labelNames []string) LabelSet {
	if labelNames == nil {
		labelNames = KnownLabels
	}

	labels := make(LabelSet, len(labelNames))
	for _, name := range labelNames {
		labels[name] = r.Get(name)
	}

	if norm, ok := normalizers[r.Kind()]; ok {
		norm(r, labels)
	}
	return labels
}

// Identity returns the rendered "id" label.
func (ls LabelSet) Identity() string {
	return Downcast(ls["id"])
}

// Values renders the label values in order. A nil order sorts the label
// names lexicographically.
func (ls LabelSet) Values(order []string) []string {
	if order == nil {
		order = make([]string, 0, len(ls))
		for name := range ls {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	values := make([]string, len(order))
	for i, name := range order {
		values[i] = Downcast(ls[name])
	}
	return values
}

// Downcast renders a record value as a label value: nil is "", booleans are
// "1"/"0", numbers use their plain base-10 form.
func Downcast(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "1"
		}
		return "0"
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	default:
		return fmt.Sprint(val)
	}
}
