package receipt

import (
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

// Flags whose value is always redacted, matched without leading dashes.
var sensitiveFlags = map[string]bool{
	"password":      true,
	"passphrase":    true,
	"token":         true,
	"secret":        true,
	"api-key":       true,
	"access-token":  true,
	"client-secret": true,
	"sas":           true,
}

// Prefixes of credentials likely to show up next to policy tooling.
var sensitivePrefixes = []string{
	"ghp_",        // GitHub PAT
	"github_pat_", // GitHub fine-grained PAT
	"AKIA",        // AWS access key
	"ya29.",       // Google OAuth
	"eyJ",         // JWT header
	"sv=20",       // Azure SAS token
	"xoxb-",       // Slack bot
}

var (
	jwtRegex        = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}$`)
	longSecretRegex = regexp.MustCompile(`^[A-Za-z0-9+/=_-]{32,}$`)
	// File digests are routine arguments, never secrets.
	digestRegex = regexp.MustCompile(`^(0[xX])?([0-9A-Fa-f]{40}|[0-9A-Fa-f]{64})$`)
)

// RedactArgs replaces secret-looking arguments and reports whether any were
// replaced. The input slice is not modified.
func RedactArgs(args []string) ([]string, bool) {
	out := make([]string, len(args))
	redacted := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, value, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(name, "-") {
			if isSensitiveFlag(name) || isSensitiveValue(value) {
				out[i] = name + "=" + redactedValue
				redacted = true
			} else {
				out[i] = arg
			}
			continue
		}

		if strings.HasPrefix(arg, "-") && isSensitiveFlag(arg) && i+1 < len(args) {
			out[i] = arg
			i++
			out[i] = redactedValue
			redacted = true
			continue
		}

		if isSensitiveValue(arg) {
			out[i] = redactedValue
			redacted = true
			continue
		}
		out[i] = arg
	}
	return out, redacted
}

func isSensitiveFlag(flag string) bool {
	return sensitiveFlags[strings.ToLower(strings.TrimLeft(flag, "-"))]
}

func isSensitiveValue(v string) bool {
	if digestRegex.MatchString(v) {
		return false
	}
	for _, p := range sensitivePrefixes {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	if jwtRegex.MatchString(v) {
		return true
	}
	// Paths and publisher names carry separators; bare tokens do not.
	if strings.ContainsAny(v, `/\., `) {
		return false
	}
	return longSecretRegex.MatchString(v)
}
