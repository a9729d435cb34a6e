package oauth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProtocolViolation is returned when the callback carries neither a
	// code nor an error.
	ErrProtocolViolation = errors.New("authorization callback carried neither code nor error")

	// ErrStateMismatch is returned when the callback state does not match
	// the one sent with the authorization request.
	ErrStateMismatch = errors.New("state mismatch - possible CSRF attack")

	// ErrMissingVerifier is returned when the PKCE verifier for a pending
	// exchange is no longer stored.
	ErrMissingVerifier = errors.New("no pending PKCE verifier for this authorization")

	// ErrAuthRequired is returned when a token is needed but none is stored
	// and interactive authorization was not requested.
	ErrAuthRequired = errors.New("authentication required")
)

// UserCancelledError means the user declined the authorization request.
type UserCancelledError struct {
	AgentID     string
	Description string
}

func (e *UserCancelledError) Error() string {
	msg := "authorization cancelled by user"
	if e.AgentID != "" {
		msg = fmt.Sprintf("authorization for %s cancelled by user", e.AgentID)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// AuthorizationError is any other error reported by the authorization server
// on the callback.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s - %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization failed: %s", e.Code)
}

// IsUserCancelled reports whether err is, or wraps, a *UserCancelledError.
func IsUserCancelled(err error) bool {
	var cancelled *UserCancelledError
	return errors.As(err, &cancelled)
}

// IsTokenExpiredError reports whether an error from an agent call indicates
// that the presented token was rejected.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}

	patterns := []string{
		"401",
		"invalid_token",
		"token validation failed",
		"token expired",
		"token has expired",
		"unauthorized",
	}

	errLower := strings.ToLower(err.Error())
	for _, pattern := range patterns {
		if strings.Contains(errLower, pattern) {
			return true
		}
	}
	return false
}
