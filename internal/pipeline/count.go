package pipeline

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultCount = 3
	MaxCount     = 10
)

// NormalizeCount turns a loosely typed "count" field into a usable diagram
// count. Missing, zero or non-numeric values give DefaultCount; anything else
// is truncated and clamped to [1, MaxCount].
func NormalizeCount(raw any) int {
	var n float64
	switch v := raw.(type) {
	case nil:
		return DefaultCount
	case int:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	case float32:
		n = float64(v)
	case float64:
		n = v
	case json.Number:
		f, ok := parseCount(string(v))
		if !ok {
			return DefaultCount
		}
		n = f
	case string:
		f, ok := parseCount(v)
		if !ok {
			return DefaultCount
		}
		n = f
	default:
		return DefaultCount
	}
	switch {
	case math.IsNaN(n):
		return DefaultCount
	case n >= MaxCount:
		return MaxCount
	case n <= -1:
		return 1
	}
	// n is now inside (-1, MaxCount), so the conversion is exact.
	if c := int(n); c >= 1 {
		return c
	}
	return DefaultCount
}

// parseCount accepts out-of-range literals such as "1e400" as ±Inf.
func parseCount(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}
