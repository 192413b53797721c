package tool

import "strings"

const modulePathSeparator = "::"

// ModulePath identifies a benchmark hierarchically, e.g. "benches::fib_group::fib".
type ModulePath string

// Join appends a segment.
func (m ModulePath) Join(segment string) ModulePath {
	if m == "" {
		return ModulePath(segment)
	}
	return ModulePath(string(m) + modulePathSeparator + segment)
}

// Segments returns the non-empty path segments.
func (m ModulePath) Segments() []string {
	var out []string
	for _, s := range strings.Split(string(m), modulePathSeparator) {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (m ModulePath) String() string { return string(m) }
