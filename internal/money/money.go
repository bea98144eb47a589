// Package money normalizes price values that arrive in inconsistent shapes
// (legacy rows store formatted strings like "120,000원", newer ones plain
// numbers) into integer minor units.
package money

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ParseAmount converts a price value into an integer amount of minor
// currency units. It accepts numbers and strings with thousands separators
// or a trailing currency suffix. It is total: nil, empty and non-numeric
// input yield 0 rather than an error, because downstream commission math
// must never fail on malformed legacy data. Negative results are clamped
// to 0.
func ParseAmount(v any) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case int:
		return clamp(int64(val))
	case int64:
		return clamp(val)
	case float64:
		return clamp(int64(val))
	case json.Number:
		return parseString(val.String())
	case string:
		return parseString(val)
	default:
		return 0
	}
}

func parseString(s string) int64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0
	}

	// Formatted prices may carry a fractional part; minor units are whole.
	if i := strings.IndexByte(cleaned, '.'); i >= 0 {
		cleaned = cleaned[:i]
	}
	if cleaned == "" || cleaned == "-" {
		return 0
	}

	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0
	}
	return clamp(n)
}

func clamp(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
