package mpesa

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// field pairs a payload key with the extractor that reads it.
type field struct {
	key     string
	extract func(v interface{}) (string, bool)
}

// firstMatch walks fields in order and returns the first non-empty value.
func firstMatch(payload map[string]interface{}, fields []field) string {
	for _, f := range fields {
		v, ok := payload[f.key]
		if !ok {
			continue
		}
		if s, ok := f.extract(v); ok {
			return s
		}
	}
	return ""
}

func keys(extract func(v interface{}) (string, bool), names ...string) []field {
	fields := make([]field, len(names))
	for i, name := range names {
		fields[i] = field{key: name, extract: extract}
	}
	return fields
}

// asString accepts strings and numbers. Booleans, maps and arrays never count as a value.
func asString(v interface{}) (string, bool) {
	var s string
	switch val := v.(type) {
	case string:
		s = strings.TrimSpace(val)
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	default:
		return "", false
	}
	return s, s != ""
}

func firstElement(v interface{}) (string, bool) {
	switch val := v.(type) {
	case []interface{}:
		if len(val) == 0 {
			return "", false
		}
		return asString(val[0])
	case []string:
		if len(val) == 0 {
			return "", false
		}
		return asString(val[0])
	default:
		return "", false
	}
}

// asNumber reports numeric JSON values only; numeric-looking strings are not numbers here.
func asNumber(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	default:
		return decimal.Zero, false
	}
}

// asDecimal accepts numbers and numeric strings.
func asDecimal(v interface{}) (decimal.Decimal, bool) {
	if d, ok := asNumber(v); ok {
		return d, true
	}
	s, ok := v.(string)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
