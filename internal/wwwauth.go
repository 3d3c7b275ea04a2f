package internal

import "strings"

// ClassifyWWWAuthenticate extracts the OAuth error token from a
// www-authenticate challenge header, e.g.
// `Bearer realm="reddit", error="insufficient_scope"` -> "insufficient_scope".
// It mirrors prawcore's authorization_error_class: strip quotes and take
// whatever follows the last "=". Returns "" if the header is empty or
// carries no "=".
func ClassifyWWWAuthenticate(header string) string {
	if header == "" {
		return ""
	}
	unquoted := strings.ReplaceAll(header, `"`, "")
	idx := strings.LastIndex(unquoted, "=")
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(unquoted[idx+1:])
}
