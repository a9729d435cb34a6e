package oauth

// State is the authorization state of one agent's credentials.
type State int

const (
	// StateNoCredentials means nothing usable is stored.
	StateNoCredentials State = iota

	// StatePendingAuthorization means the browser was sent to the
	// authorization server and the callback has not arrived yet.
	StatePendingAuthorization

	// StateExchanging means a code arrived and is being exchanged.
	StateExchanging

	// StateAuthorized means a valid access token is stored.
	StateAuthorized

	// StateExpired means the stored access token has expired.
	StateExpired

	// StateInvalid means the last attempt failed or the server rejected
	// the stored credentials.
	StateInvalid
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNoCredentials:
		return "no-credentials"
	case StatePendingAuthorization:
		return "pending-authorization"
	case StateExchanging:
		return "exchanging"
	case StateAuthorized:
		return "authorized"
	case StateExpired:
		return "expired"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}
