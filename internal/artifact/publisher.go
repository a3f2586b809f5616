package artifact

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// orgRegex finds an O= attribute that is not part of OU= or another key. A
// quoted value may contain commas.
var orgRegex = regexp.MustCompile(`(?:^|[,;\s])O=("(?:[^"]|"")*"|[^,]*)`)

// ExtractPublisher derives the wildcard trust pattern for a signing identity.
// "CN=Contoso Ltd, O=Contoso, C=US" yields "O=Contoso*". Without an O= attribute
// the raw string is returned as-is; nil or blank input yields nil.
func ExtractPublisher(raw *string) *string {
	if raw == nil {
		return nil
	}
	subject := strings.TrimSpace(*raw)
	if subject == "" {
		return nil
	}

	if m := orgRegex.FindStringSubmatch(subject); m != nil {
		org := strings.TrimSpace(m[1])
		if len(org) >= 2 && strings.HasPrefix(org, `"`) && strings.HasSuffix(org, `"`) {
			org = strings.ReplaceAll(org[1:len(org)-1], `""`, `"`)
		}
		org = strings.TrimSpace(strings.Trim(org, `"`))
		if org != "" {
			pattern := "O=" + org + "*"
			return &pattern
		}
	}
	return &subject
}

// OrganizationName strips the O= prefix and trailing wildcard from a pattern.
func OrganizationName(pattern string) string {
	org := strings.TrimSuffix(strings.TrimSpace(pattern), "*")
	if len(org) > 2 && strings.EqualFold(org[:2], "O=") {
		org = org[2:]
	}
	return strings.TrimSpace(org)
}

// MatchesPublisher reports whether a signing subject (raw or already a pattern)
// falls under a publisher pattern. Comparison is case-insensitive.
func MatchesPublisher(pattern, subject string) bool {
	pattern = strings.TrimSpace(pattern)
	subject = strings.TrimSpace(subject)
	if pattern == "" || subject == "" {
		return false
	}
	if strings.EqualFold(pattern, subject) {
		return true
	}
	if derived := ExtractPublisher(&subject); derived != nil && strings.EqualFold(*derived, pattern) {
		return true
	}
	return wildcardMatch(pattern, subject)
}

// wildcardMatch treats only * as special; every other rune is literal.
func wildcardMatch(pattern, s string) bool {
	parts := strings.Split(strings.ToLower(pattern), "*")
	for i, p := range parts {
		parts[i] = glob.QuoteMeta(p)
	}
	g, err := glob.Compile(strings.Join(parts, "*"))
	if err != nil {
		return false
	}
	return g.Match(strings.ToLower(s))
}
