package artifact

import "strings"

// pathVariables are the AppLocker path variables with their default expansions.
var pathVariables = []struct {
	variable string
	expanded string
}{
	{"%programfiles%", `c:\program files`},
	{"%system32%", `c:\windows\system32`},
	{"%windir%", `c:\windows`},
	{"%osdrive%", `c:`},
	{"%removable%", `*`},
	{"%hot%", `*`},
}

// PathKey is the case-insensitive identity of a file-system path.
func PathKey(path string) string {
	p := strings.ToLower(strings.TrimSpace(path))
	p = strings.ReplaceAll(p, "/", `\`)
	if len(p) > 3 {
		p = strings.TrimRight(p, `\`)
	}
	return p
}

// MatchesPath reports whether a concrete path falls under a path-rule pattern.
// Patterns may use * and the default AppLocker variables.
func MatchesPath(pattern, path string) bool {
	p := PathKey(pattern)
	target := PathKey(path)
	if p == "" || target == "" {
		return false
	}
	if p == target {
		return true
	}
	for _, v := range pathVariables {
		p = strings.ReplaceAll(p, v.variable, v.expanded)
	}
	return wildcardMatch(p, target)
}
