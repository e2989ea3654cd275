package pii

import (
	"regexp"
	"strings"
)

var ipAddressRegex = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)(:[1-9][0-9]{0,4})?$`)

// ResolveIPAddress picks the client address: the first X-Forwarded-For entry,
// then REMOTE_ADDR, then the transport peer address. Every candidate must be
// an IPv4 address with an optional port; invalid ones are skipped.
func ResolveIPAddress(req RequestContext) string {
	vars := req.ServerVariables()

	if vars != nil {
		if forwarded, err := vars.Value("HTTP_X_FORWARDED_FOR"); err == nil {
			if first, _, _ := strings.Cut(forwarded, ","); IsValidIPAddress(first) {
				return strings.TrimSpace(first)
			}
		}
		if remote, err := vars.Value("REMOTE_ADDR"); err == nil && IsValidIPAddress(remote) {
			return strings.TrimSpace(remote)
		}
	}
	if remote := req.RemoteAddr(); IsValidIPAddress(remote) {
		return strings.TrimSpace(remote)
	}
	return ""
}

// IsValidIPAddress reports whether s is an IPv4 address with an optional port.
func IsValidIPAddress(s string) bool {
	return ipAddressRegex.MatchString(strings.TrimSpace(s))
}
