package util

import (
	"encoding/json"
	"strings"
)

// A wrapper around a generic string map for accessing elements.
type JsonMap map[string]interface{}

func (m JsonMap) GetMap(name string) JsonMap {
	if m == nil {
		return nil
	}
	switch v := m[name].(type) {
	case map[string]interface{}:
		return JsonMap(v)
	case JsonMap:
		return v
	}
	return nil
}

func (m JsonMap) GetMapList(name string) []JsonMap {
	if m == nil {
		return nil
	}

	switch v := m[name].(type) {
	case []interface{}:
		result := make([]JsonMap, 0, len(v))
		for _, item := range v {
			if entry, ok := item.(map[string]interface{}); ok {
				result = append(result, JsonMap(entry))
			}
		}
		return result
	}

	return nil
}

func (m JsonMap) Get(name string) interface{} {
	if m == nil {
		return nil
	}
	return m[name]
}

// GetPath returns the value at a dotted path such as "alert.signature_id".
func (m JsonMap) GetPath(path string) interface{} {
	parts := strings.Split(path, ".")
	current := m
	for i, part := range parts {
		if current == nil {
			return nil
		}
		if i == len(parts)-1 {
			return current.Get(part)
		}
		current = current.GetMap(part)
	}
	return nil
}

func (m JsonMap) GetString(name string) string {
	if m == nil {
		return ""
	}
	val, ok := m[name].(string)
	if !ok {
		return ""
	}
	return val
}

func (m JsonMap) GetInt64(name string) int64 {
	value, _ := AsInt64(m.Get(name))
	return value
}

// AsInt64 converts the numeric types that come out of a JSON decode to an
// int64.
func AsInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

// AsFloat64 is like AsInt64 but for floating point values.
func AsFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

func (m JsonMap) GetKeys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return keys
}

func (m JsonMap) HasKey(key string) bool {
	return m[key] != nil
}

// GetAsStrings will return the value with the given name as a slice
// of strings. On failure an empty slice will be returned.
func (m JsonMap) GetAsStrings(name string) []string {
	items, ok := m[name].([]interface{})
	if !ok {
		if items, ok := m[name].([]string); ok {
			return items
		}
		return []string{}
	}
	strings := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			strings = append(strings, s)
		}
	}
	return strings
}
