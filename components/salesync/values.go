package salesync

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

func stringValue(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func intValue(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n), true
		}
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n, true
		}
	}
	return 0, false
}

func decimalValue(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case json.Number:
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return d, true
		}
	case string:
		if d, err := decimal.NewFromString(val); err == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

