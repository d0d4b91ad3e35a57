package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// toFloat rejects NaN and infinities, which strconv would otherwise accept
// from strings such as "NaN" or "Inf".
func toFloat(value interface{}) (float64, error) {
	f, err := parseFloat(value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cannot convert %v to a finite float", value)
	}
	return f, nil
}

func parseFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert value of type %T to float", value)
	}
}

func toInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return truncate(v)
	case float32:
		return truncate(float64(v))
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to integer", v.String())
		}
		return truncate(f)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to integer", v)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("cannot convert value of type %T to integer", value)
	}
}

// truncate converts toward zero. float64(math.MaxInt64) rounds up to 2^63,
// so the upper bound is exclusive.
func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("cannot convert %v to integer", f)
	}
	return int64(f), nil
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "t":
			return true, nil
		case "false", "0", "no", "f", "":
			return false, nil
		}
		return false, fmt.Errorf("cannot convert %q to boolean", v)
	default:
		f, err := toFloat(value)
		if err != nil {
			return false, fmt.Errorf("cannot convert value of type %T to boolean", value)
		}
		return f != 0, nil
	}
}

// toString returns ok=false for null so callers can apply their default.
func toString(value interface{}) (s string, ok bool, err error) {
	switch v := value.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case json.Number:
		return v.String(), true, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	case int:
		return strconv.Itoa(v), true, nil
	case int64:
		return strconv.FormatInt(v, 10), true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	default:
		return "", false, fmt.Errorf("cannot convert value of type %T to string", value)
	}
}
