package profiles

import (
	"slices"
	"strings"
)

// NormalizeIdentifiers trims each raw identifier, strips one leading "@",
// drops blanks and case-insensitive duplicates, and sorts the rest
// case-insensitively. The first spelling seen for an identifier is the one
// kept and sent upstream.
func NormalizeIdentifiers(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		id := strings.TrimPrefix(strings.TrimSpace(r), "@")
		if id == "" {
			continue
		}
		key := strings.ToLower(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return out
}

// cacheKey builds "<kind>:<lower(identifier)>:<extra>".
func cacheKey(kind, identifier, extra string) string {
	return kind + ":" + strings.ToLower(identifier) + ":" + extra
}
