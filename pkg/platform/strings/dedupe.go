// Package strings cleans list-valued settings.
package strings

import "strings"

// DedupeAndTrim trims each value and drops empties and repeats, keeping the
// first occurrence. A comma-separated env var such as "a:9092, b:9092,"
// arrives as {"a:9092", " b:9092", ""} and leaves as {"a:9092", "b:9092"}.
func DedupeAndTrim(values []string) []string {
	out := values[:0:0]
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
