package agent

import "strings"

// matchesPattern implements spec.md §6's include/exclude pattern syntax:
// "*" matches everything, "prefix.*" matches any name starting with
// prefix, anything else is an exact match.
func matchesPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(name, prefix)
	}
	return pattern == name
}

// covered implements spec.md §6's coverage selection against the
// configured include/exclude patterns: a name is covered if it matches an
// include pattern (or no include patterns are configured) and does not
// match an exclude pattern. Exclude always wins over include.
func covered(cfg *Config, name string) bool {
	for _, p := range cfg.ExcludePatterns {
		if matchesPattern(p, name) {
			return false
		}
	}
	if len(cfg.IncludePatterns) == 0 {
		return true
	}
	for _, p := range cfg.IncludePatterns {
		if matchesPattern(p, name) {
			return true
		}
	}
	return false
}
