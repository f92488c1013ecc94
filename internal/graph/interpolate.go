package graph

import (
	"strings"
)

// interpolationRow pairs an interpolated target pattern (containing exactly
// one `#` token) with the job node that declared it, plus the matching
// dependency patterns that must be substituted with the same captured
// fragment when a concrete job is synthesized (spec.md §4.E
// expand_interpolate).
type interpolationRow struct {
	targetPattern string
	jobID         int
	depPatterns   []string
}

// splitToken splits a `#`-bearing pattern into its literal prefix/suffix.
// Patterns in this spec carry at most one interpolation token.
func splitToken(pattern string) (prefix, suffix string, ok bool) {
	i := strings.IndexByte(pattern, '#')
	if i < 0 {
		return "", "", false
	}
	return pattern[:i], pattern[i+1:], true
}

// matchInterpolated reports whether concrete matches pattern's prefix#suffix
// shape, returning the captured middle fragment.
func matchInterpolated(pattern, concrete string) (captured string, ok bool) {
	prefix, suffix, isToken := splitToken(pattern)
	if !isToken {
		return "", false
	}
	if !strings.HasPrefix(concrete, prefix) || !strings.HasSuffix(concrete, suffix) {
		return "", false
	}
	// Reject overlap: prefix/suffix windows must not cross.
	if len(prefix)+len(suffix) > len(concrete) {
		return "", false
	}
	mid := concrete[len(prefix) : len(concrete)-len(suffix)]
	if mid == "" {
		return "", false
	}
	return mid, true
}

// substitute replaces the single `#` token in pattern with captured.
func substitute(pattern, captured string) string {
	return strings.Replace(pattern, "#", captured, 1)
}

// bestInterpolationMatch resolves the tie-break rule recorded in
// DESIGN.md/SPEC_FULL.md §9: among rows whose target pattern matches the
// requested concrete target, the longest prefix wins; ties broken by the
// longest suffix. Both comparisons are strict `>` (no ties fall through
// silently — a genuine tie after both is not expected for disjoint manifests
// and is resolved by declaration order as a last resort).
func bestInterpolationMatch(rows []interpolationRow, concrete string) (row interpolationRow, captured string, found bool) {
	bestPrefixLen, bestSuffixLen := -1, -1
	for _, r := range rows {
		cap, ok := matchInterpolated(r.targetPattern, concrete)
		if !ok {
			continue
		}
		prefix, suffix, _ := splitToken(r.targetPattern)
		if len(prefix) > bestPrefixLen ||
			(len(prefix) == bestPrefixLen && len(suffix) > bestSuffixLen) {
			bestPrefixLen, bestSuffixLen = len(prefix), len(suffix)
			row, captured, found = r, cap, true
		}
	}
	return row, captured, found
}
