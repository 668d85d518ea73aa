// Package config loads pagepulse settings from flags and an optional JSON or
// YAML file. Flags always win over the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// lookupSetting returns the first of keys present in settings. File keys are
// lowercased on load, so each key is also tried in lower case.
func lookupSetting(settings map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		for _, k := range []string{key, strings.ToLower(key)} {
			if val, ok := settings[k]; ok {
				return val, true
			}
		}
	}
	return nil, false
}

// blank reports whether value is a string holding only whitespace. A blank
// setting reads as the zero value rather than a parse error, so
// `speed: ""` in YAML means "unset".
func blank(value any) bool {
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func trimmed(value any) any {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}

func asString(value any) (string, error) {
	s, err := cast.ToStringE(value)
	if err != nil {
		return "", fmt.Errorf("expected text, got %T", value)
	}
	return s, nil
}

func asInt(value any) (int, error) {
	if blank(value) {
		return 0, nil
	}
	return cast.ToIntE(trimmed(value))
}

func asFloat64(value any) (float64, error) {
	if blank(value) {
		return 0, nil
	}
	return cast.ToFloat64E(trimmed(value))
}

func asBool(value any) (bool, error) {
	if blank(value) {
		return false, nil
	}
	return cast.ToBoolE(trimmed(value))
}

// asDuration reads a Go duration string such as "30s". Bare numbers, typed
// or quoted, count as seconds: ping_interval: 15 waits fifteen seconds.
func asDuration(value any) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		if secs, err := cast.ToFloat64E(v); err == nil {
			return seconds(secs), nil
		}
		return time.ParseDuration(v)
	}
	secs, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
	return seconds(secs), nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// asStringSlice reads a list setting. A lone string is a one-item list and
// is not split on whitespace, since thresholds such as "lcp < 2500" contain
// spaces.
func asStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = s
		}
		return out, nil
	}
	return cast.ToStringSliceE(value)
}

// toStringKeyMap reads a nested section such as ingest or tracing. YAML
// decodes those with interface keys, JSON with string keys; both come back
// with trimmed, lowercased string keys.
func toStringKeyMap(value any) (map[string]any, error) {
	switch value.(type) {
	case map[string]any, map[any]any:
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	raw, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raw))
	for key, val := range raw {
		out[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return out, nil
}
