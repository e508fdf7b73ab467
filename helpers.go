package plugwire

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/plugwire/plugwire-go/domain/errors"
)

// Config is a host-side plugin configuration as read from YAML or JSON.
// Plugins see their config as strings; Strings converts it.
type Config map[string]any

// Strings returns the config as plugins see it: strings unchanged, other
// values JSON-encoded, nil values dropped.
func (c Config) Strings() (map[string]string, error) {
	out := make(map[string]string, len(c))
	for _, k := range slices.Sorted(maps.Keys(c)) {
		switch v := c[k].(type) {
		case nil:
		case string:
			out[k] = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, &errors.ConfigError{Field: k, Err: err}
			}
			out[k] = string(b)
		}
	}
	return out, nil
}

// GetString returns the string value of key.
func GetString(config Config, key string) (string, bool) {
	s, ok := config[key].(string)
	return s, ok
}

// GetInt returns the integer value of key. JSON numbers decode as float64,
// so whole floats are accepted.
func GetInt(config Config, key string) (int, bool) {
	switch n := config[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true //nolint:gosec // G115: config values are small
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// GetBool returns the bool value of key.
func GetBool(config Config, key string) (bool, bool) {
	b, ok := config[key].(bool)
	return b, ok
}

// GetStringSlice returns key as a slice of strings.
func GetStringSlice(config Config, key string) ([]string, bool) {
	switch v := config[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// MustGetString returns the string value of key or a ConfigError.
func MustGetString(config Config, key string) (string, error) {
	s, ok := GetString(config, key)
	if !ok {
		return "", &errors.ConfigError{
			Field: key,
			Err:   fmt.Errorf("required string field '%s' is missing or not a string", key),
		}
	}
	return s, nil
}

// GetStringDefault returns the string value of key, or def.
func GetStringDefault(config Config, key, def string) string {
	if s, ok := GetString(config, key); ok {
		return s
	}
	return def
}

// GetIntDefault returns the integer value of key, or def.
func GetIntDefault(config Config, key string, def int) int {
	if i, ok := GetInt(config, key); ok {
		return i
	}
	return def
}
