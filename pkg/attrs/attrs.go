// Package attrs reads values back out of slog-style key/value attribute lists.
package attrs

// Lookup returns the value paired with key in kv ([k1, v1, k2, v2, ...]) when
// it has type T. The first matching key wins.
func Lookup[T any](kv []any, key string) (T, bool) {
	var zero T
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			v, ok := kv[i+1].(T)
			return v, ok
		}
	}
	return zero, false
}

// String is Lookup for string values, with "" for a missing key.
func String(kv []any, key string) string {
	v, _ := Lookup[string](kv, key)
	return v
}
