package models

import "strings"

// DefaultPrincipal applies a rule to every user.
const DefaultPrincipal = "Everyone"

const everyoneSID = "S-1-1-0"

var wellKnownSIDs = map[string]string{
	"everyone":                "S-1-1-0",
	"administrators":          "S-1-5-32-544",
	"builtin\\administrators": "S-1-5-32-544",
	"users":                   "S-1-5-32-545",
	"builtin\\users":          "S-1-5-32-545",
	"authenticated users":     "S-1-5-11",
	"system":                  "S-1-5-18",
}

var sidNames = map[string]string{
	"S-1-1-0":      "Everyone",
	"S-1-5-32-544": "Administrators",
	"S-1-5-32-545": "Users",
	"S-1-5-11":     "Authenticated Users",
	"S-1-5-18":     "SYSTEM",
}

// PrincipalSID resolves a well-known principal name to its SID. SIDs and
// unknown names pass through unchanged for the deployment side to resolve.
func PrincipalSID(principal string) string {
	p := strings.TrimSpace(principal)
	if p == "" {
		return everyoneSID
	}
	if sid, ok := wellKnownSIDs[strings.ToLower(p)]; ok {
		return sid
	}
	return p
}

// PrincipalName maps a well-known SID back to its display name.
func PrincipalName(sid string) string {
	s := strings.TrimSpace(sid)
	if name, ok := sidNames[strings.ToUpper(s)]; ok {
		return name
	}
	return s
}
