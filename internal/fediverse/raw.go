package fediverse

import "github.com/bytedance/sonic"

// DecodeMap decodes an item's original JSON so it can be kept as its payload.
func DecodeMap(raw []byte) map[string]any {
	var m map[string]any
	if err := sonic.Unmarshal(raw, &m); err != nil {
		return nil
	}

	return m
}

// NestedMap returns m[key] when it is an object.
func NestedMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}

	return nil
}
