// Package strings holds small helpers for list-valued settings.
package strings

import "strings"

// SplitList splits raw on sep, trims each element and drops empties and
// repeats. Order of first appearance is kept; an empty input yields nil.
func SplitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
