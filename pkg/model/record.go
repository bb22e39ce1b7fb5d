package model

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Kind is the value of a record's "type" field. It selects how a record's
// identity and liveness are read.
type Kind string

// Resource kinds reported by /cluster/resources and /cluster/status.
const (
	KindNode    Kind = "node"
	KindQemu    Kind = "qemu"
	KindLXC     Kind = "lxc"
	KindStorage Kind = "storage"
	KindVM      Kind = "vm"
	KindCluster Kind = "cluster"
)

// Record is one loosely typed resource record as returned by the Proxmox VE
// API. Values are json.Number, string, bool or nil; a missing key and a nil
// value are treated the same.
//
// Records are shared between collectors of one scrape and must not be
// mutated; use Clone or Without to derive a modified copy.
type Record map[string]any

// Kind returns the record's "type" field. A missing or non-string type
// yields the empty Kind.
func (r Record) Kind() Kind {
	s, _ := r["type"].(string)
	return Kind(s)
}

// Get returns the raw value of field, or nil when it is absent.
func (r Record) Get(field string) any {
	return r[field]
}

// Has reports whether field is present with a non-nil value.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// String returns field when it holds a string.
func (r Record) String(field string) (string, bool) {
	s, ok := r[field].(string)
	return s, ok
}

// Float returns field as a float64. Numbers, numeric strings and booleans
// convert; everything else reports false.
func (r Record) Float(field string) (float64, bool) {
	return toFloat(r[field])
}

// Truthy reports whether field holds a "true-ish" value: true, a non-zero
// number or a non-empty string.
func (r Record) Truthy(field string) bool {
	switch v := r[field].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	default:
		f, ok := toFloat(v)
		return ok && f != 0
	}
}

// Keys returns the record's field names sorted lexicographically, so callers
// deriving a label schema get the same order on every run.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Without returns a copy of the record with fields removed.
func (r Record) Without(fields ...string) Record {
	out := r.Clone()
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
