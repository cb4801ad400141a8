// Package scope provides pure helpers for reasoning about hierarchical
// memory scopes. A scope is a /-delimited path such as "work/meetings";
// canonical form has no leading or trailing slash and no empty segments.
package scope

import (
	"fmt"
	"strings"
)

// Separator delimits scope segments.
const Separator = "/"

// Canonicalize trims surrounding slashes and whitespace from each segment
// and rejoins. It does not validate; use Validate for that.
func Canonicalize(s string) string {
	parts := strings.Split(s, Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, Separator)
}

// Validate reports whether s is a non-empty canonical scope.
func Validate(s string) error {
	if s == "" {
		return fmt.Errorf("scope must not be empty")
	}
	if s != Canonicalize(s) {
		return fmt.Errorf("scope %q is not canonical", s)
	}
	return nil
}

// Parent returns the scope one level up, or ("", false) for a top-level scope.
func Parent(s string) (string, bool) {
	idx := strings.LastIndex(s, Separator)
	if idx < 0 {
		return "", false
	}
	return s[:idx], true
}

// IsAncestor reports whether b equals a or lives under it. The check is
// segment-aligned: "work" covers "work/meetings" but never "workshop".
func IsAncestor(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(b, a+Separator)
}

// Depth returns the number of segments in s. The empty scope has depth 0.
func Depth(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, Separator) + 1
}

// Children filters known to scopes exactly one segment deeper than s.
func Children(s string, known []string) []string {
	want := Depth(s) + 1
	var out []string
	for _, k := range known {
		if k == s {
			continue
		}
		if IsAncestor(s, k) && Depth(k) == want {
			out = append(out, k)
		}
	}
	return out
}

// Descendants filters known to scopes strictly under s (any depth).
func Descendants(s string, known []string) []string {
	var out []string
	for _, k := range known {
		if k != s && IsAncestor(s, k) {
			out = append(out, k)
		}
	}
	return out
}
