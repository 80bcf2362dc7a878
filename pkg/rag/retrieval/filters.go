package retrieval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var allowedFilterFields = map[string]bool{
	"class_id":      true,
	"class_name":    true,
	"subject":       true,
	"subject_id":    true,
	"lecture_id":    true,
	"teacher_id":    true,
	"teacher_name":  true,
	"transcript_id": true,
	"is_ingested":   true,
	"topics":        true,
	"chapter":       true,
}

var integerFilterFields = map[string]bool{
	"class_id":      true,
	"subject_id":    true,
	"lecture_id":    true,
	"teacher_id":    true,
	"transcript_id": true,
	"chunk_index":   true,
}

var filterOperators = map[string]bool{
	"$eq": true, "$ne": true, "$in": true, "$nin": true,
	"$gt": true, "$gte": true, "$lt": true, "$lte": true,
}

// IsIntegerField reports whether a metadata field is stored as an integer id.
func IsIntegerField(field string) bool {
	return integerFilterFields[field]
}

// NormalizeFilters turns caller filters into {field: {op: value}} form.
// Unknown fields, the swagger placeholder key and empty values are dropped.
// Integer fields are coerced; values that cannot be coerced are dropped.
func NormalizeFilters(filters map[string]interface{}) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{})
	for field, raw := range filters {
		if field == "additionalProp1" || !allowedFilterFields[field] || isEmpty(raw) {
			continue
		}

		switch v := raw.(type) {
		case map[string]interface{}:
			ops := make(map[string]interface{})
			for op, val := range v {
				if !filterOperators[op] || isEmpty(val) {
					continue
				}
				if coerced, ok := coerceValue(field, val); ok {
					ops[op] = coerced
				}
			}
			if len(ops) > 0 {
				out[field] = ops
			}
		case []interface{}, []string, []int, []int64, []float64:
			if coerced, ok := coerceValue(field, v); ok {
				out[field] = map[string]interface{}{"$in": coerced}
			}
		default:
			if coerced, ok := coerceValue(field, v); ok {
				out[field] = map[string]interface{}{"$eq": coerced}
			}
		}
	}
	return out
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}

func coerceValue(field string, v interface{}) (interface{}, bool) {
	if list, ok := toList(v); ok {
		var out []interface{}
		for _, item := range list {
			if c, ok := coerceScalar(field, item); ok {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	}
	return coerceScalar(field, v)
}

func toList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]interface{}, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]interface{}, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func coerceScalar(field string, v interface{}) (interface{}, bool) {
	if !integerFilterFields[field] {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s), true
		}
		return v, true
	}

	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t != math.Trunc(t) {
			return nil, false
		}
		return int64(t), true
	case float32:
		return coerceScalar(field, float64(t))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	default:
		return nil, false
	}
}

func describeFilters(f map[string]map[string]interface{}) string {
	parts := make([]string, 0, len(f))
	for field, ops := range f {
		for op, v := range ops {
			parts = append(parts, fmt.Sprintf("%s%s%v", field, op, v))
		}
	}
	return strings.Join(parts, ",")
}
