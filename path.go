package unitypackage

import "strings"

// Pathnames inside a package always use "/" separators, so the helpers
// below work on the raw string rather than through path/filepath.

// baseName returns the final element of p; "" when p ends in "/".
func baseName(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}

// dirName returns everything before the final element of p with trailing
// slashes removed, or "" when p has no directory part.
func dirName(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	head := p[:i+1]
	if trimmed := strings.TrimRight(head, "/"); trimmed != "" {
		return trimmed
	}
	return head
}

// extension returns the suffix of the final element starting at its last
// dot. Leading dots do not start an extension, so ".gitignore" has none.
func extension(p string) string {
	base := strings.TrimLeft(baseName(p), ".")
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return ""
	}
	return base[i:]
}
