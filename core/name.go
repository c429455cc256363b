package vpt

import "strings"

// NormalizeName converts a user-provided program name to the slash-separated
// form Create produces.
//
// Leading and trailing slashes are stripped and runs of slashes collapse
// to one, so "/lib//util/" becomes "lib/util". A name made only of slashes
// normalizes to "". Dot segments are kept as written.
func NormalizeName(name string) string {
	name = strings.Trim(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	return strings.Join(result, "/")
}
