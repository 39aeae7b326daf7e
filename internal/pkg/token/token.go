package token

import "strings"

const bearerPrefix = "Bearer "

// FromBearer extracts the token from an "Authorization: Bearer <token>"
// header value. It reports false when the header is absent, uses another
// scheme, or carries an empty or space-containing token.
func FromBearer(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return "", false
	}
	return tok, true
}
