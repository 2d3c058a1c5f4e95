package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Coerce converts a raw value (as decoded from JSON) to the named column
// type: "string", "int", "float", "bool" or "timestamp". A nil input stays
// nil regardless of type.
func Coerce(val interface{}, typ string) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch typ {
	case "string":
		return CoerceString(val)
	case "int":
		return CoerceInt(val)
	case "float":
		return CoerceFloat(val)
	case "bool":
		return CoerceBool(val)
	case "timestamp":
		return CoerceTime(val)
	default:
		return nil, fmt.Errorf("unknown column type %q", typ)
	}
}

func CoerceString(val interface{}) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	case []byte:
		return string(v), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", val)
	}
}

func CoerceInt(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		// JSON numbers arrive as float64; reject fractional values rather
		// than silently truncating.
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("cannot convert fractional number %v to int", v)
		}
		return int64(v), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

func CoerceFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", val)
	}
}

func CoerceBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case float64:
		if v == 0 {
			return false, nil
		}
		if v == 1 {
			return true, nil
		}
		return false, fmt.Errorf("cannot convert number %v to bool", v)
	default:
		return false, fmt.Errorf("cannot convert %T to bool", val)
	}
}

// CoerceTime parses timestamps in the formats commonly returned by JSON
// APIs, trying the most specific layouts first.
func CoerceTime(val interface{}) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case string:
		formats := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		for _, f := range formats {
			if t, err := time.Parse(f, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", v)
	case float64:
		// Unix seconds, as some APIs report registration epochs.
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case []byte:
		return CoerceTime(string(v))
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to timestamp", val)
	}
}
