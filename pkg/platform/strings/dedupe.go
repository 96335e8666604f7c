// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty values from a slice, trimming
// whitespace from each element. Order is preserved. It accepts any string
// kind so typed values such as feed topics dedupe without conversion.
//
//	DedupeAndTrim([]feed.Topic{" drivers", "reports", "drivers", ""})
//	// Returns: []feed.Topic{"drivers", "reports"}
func DedupeAndTrim[S ~string](values []S) []S {
	if len(values) == 0 {
		return values
	}

	seen := make(map[S]struct{}, len(values))
	result := make([]S, 0, len(values))

	for _, v := range values {
		trimmed := S(strings.TrimSpace(string(v)))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitList splits a comma-separated configuration value and dedupes it.
func SplitList(raw string) []string {
	return DedupeAndTrim(strings.Split(raw, ","))
}
