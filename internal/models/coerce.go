package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// AsFloat coerces a raw column value into a finite float.
func AsFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FloatPtr is AsFloat returning nil for missing or malformed values.
func FloatPtr(v any) *float64 {
	f, ok := AsFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// AsInt coerces a raw column value into an integer, nil when absent or fractional.
func AsInt(v any) *int64 {
	f, ok := AsFloat(v)
	if !ok || f != math.Trunc(f) {
		return nil
	}
	i := int64(f)
	return &i
}

func AsString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case nil:
		return "", false
	case json.Number:
		return s.String(), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int32:
		return strconv.FormatInt(int64(s), 10), true
	case int:
		return strconv.Itoa(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	}
	return "", false
}

// AsTimestamp renders a timestamp column as an ISO-8601 string.
func AsTimestamp(v any) *string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil
		}
		s := t.UTC().Format(time.RFC3339Nano)
		return &s
	case *time.Time:
		if t == nil {
			return nil
		}
		return AsTimestamp(*t)
	case string:
		if t == "" {
			return nil
		}
		return &t
	}
	return nil
}
