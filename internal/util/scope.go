package util

import "slices"

// IsSubset reports whether every element of requested is in allowed.
// An empty requested set is a subset of anything.
func IsSubset(requested, allowed []string) bool {
	for _, s := range requested {
		if !slices.Contains(allowed, s) {
			return false
		}
	}
	return true
}

// Union returns a followed by the elements of b not already in a.
func Union(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Missing returns the elements of requested that are not in allowed.
func Missing(requested, allowed []string) []string {
	var out []string
	for _, s := range requested {
		if !slices.Contains(allowed, s) {
			out = append(out, s)
		}
	}
	return out
}
