package common

import "strings"

var separatorReplacer = strings.NewReplacer("/", "_", "\\", "_")

// HasAny returns true if s contains any of the substrings.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// PathSegment returns s with path separators replaced so it can be embedded
// in a single file name or object key component.
func PathSegment(s string) string {
	return separatorReplacer.Replace(strings.TrimSpace(s))
}
