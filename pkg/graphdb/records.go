package graphdb

import (
	"math"
	"strconv"
	"time"
)

// Record is one result row keyed by the names in the RETURN clause.
type Record map[string]any

func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// FloatOK distinguishes a stored zero from a missing or null value.
func (r Record) FloatOK(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	f := r.Float(key)
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func (r Record) Int(key string) int {
	switch v := r[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func (r Record) Bool(key string) bool {
	v, ok := r[key].(bool)
	return ok && v
}

// Time reads timestamps stored either as RFC3339 strings, plain dates or
// native temporal values.
func (r Record) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		return ParseTime(v)
	default:
		return time.Time{}
	}
}

func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Records returns a nested list of maps, as produced by collect({...}).
func (r Record) Records(key string) []Record {
	switch v := r[key].(type) {
	case []Record:
		return v
	case []map[string]any:
		out := make([]Record, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

const (
	DateLayout = "2006-01-02"
)

// FormatTime is the canonical timestamp encoding. Stored timestamps are UTC
// RFC3339 strings so range filters compare lexicographically.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FormatDate is the canonical calendar-day encoding.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, DateLayout, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
