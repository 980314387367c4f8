package oauth

import "strings"

// splitScopes parses a space-delimited scope string into its names,
// tolerating repeated whitespace.
func splitScopes(scope string) []string {
	return strings.Fields(scope)
}

func joinScopes(names []string) string {
	return strings.Join(names, " ")
}

// scopeSubset reports whether every name in requested appears in granted.
func scopeSubset(requested, granted string) bool {
	have := make(map[string]struct{})
	for _, name := range splitScopes(granted) {
		have[name] = struct{}{}
	}
	for _, name := range splitScopes(requested) {
		if _, ok := have[name]; !ok {
			return false
		}
	}
	return true
}
