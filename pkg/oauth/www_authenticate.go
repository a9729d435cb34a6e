package oauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var authParamPattern = regexp.MustCompile(`(\w+)=(?:"([^"]*)"|([^\s,]+))`)

// ParseWWWAuthenticate parses a WWW-Authenticate header value such as
//
//	Bearer realm="https://auth.example.com", resource_metadata="https://agent.example.com/.well-known/oauth-protected-resource"
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	scheme, params, _ := strings.Cut(header, " ")
	challenge := &AuthChallenge{Scheme: scheme}

	for _, m := range authParamPattern.FindAllStringSubmatch(params, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		switch strings.ToLower(m[1]) {
		case "realm":
			challenge.Realm = value
			if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
				challenge.Issuer = value
			}
		case "resource_metadata":
			challenge.ResourceMetadataURL = value
		case "scope":
			challenge.Scope = value
		case "error":
			challenge.Error = value
		case "error_description":
			challenge.ErrorDescription = value
		}
	}
	return challenge, nil
}

// ParseWWWAuthenticateFromResponse extracts the challenge from a 401
// response. It returns nil for other responses.
func ParseWWWAuthenticateFromResponse(resp *http.Response) *AuthChallenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}
	header := resp.Header.Get("WWW-Authenticate")
	if header == "" {
		return &AuthChallenge{Scheme: "Bearer"}
	}
	challenge, err := ParseWWWAuthenticate(header)
	if err != nil {
		return nil
	}
	return challenge
}

// ParseWWWAuthenticateFromError is a best-effort fallback for transports
// that only surface a 401 as error text.
func ParseWWWAuthenticateFromError(err error) *AuthChallenge {
	if !Is401Error(err) {
		return nil
	}
	msg := err.Error()
	if idx := strings.Index(msg, "Bearer"); idx >= 0 {
		remaining := msg[idx:]
		if end := strings.IndexAny(remaining, "\n\r"); end > 0 {
			remaining = remaining[:end]
		}
		if challenge, perr := ParseWWWAuthenticate(remaining); perr == nil {
			return challenge
		}
	}
	return &AuthChallenge{Scheme: "Bearer"}
}

// Is401Error reports whether an error message indicates a 401 response.
func Is401Error(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "401") || strings.Contains(strings.ToLower(msg), "unauthorized")
}
