package oauth

import (
	"net/http"

	"agenthook/internal/callback"
)

// DefaultCallbackPort is the fixed port of the local callback listener.
const DefaultCallbackPort = 8765

// DefaultCallbackPath is the path the authorization server redirects to.
const DefaultCallbackPath = "/callback"

// CallbackResult is the query of an authorization callback.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError returns true if the callback reports an error.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// classify turns a callback into its outcome. The returned error is one of
// *UserCancelledError, *AuthorizationError, ErrStateMismatch or
// ErrProtocolViolation.
func (r *CallbackResult) classify(expectedState string) error {
	switch {
	case r.Error == "access_denied":
		return &UserCancelledError{Description: r.ErrorDescription}
	case r.IsError():
		return &AuthorizationError{Code: r.Error, Description: r.ErrorDescription}
	case r.Code == "":
		return ErrProtocolViolation
	case expectedState != "" && r.State != expectedState:
		return ErrStateMismatch
	}
	return nil
}

// callbackReceiver settles the callback listener on the first request to
// the callback path, whatever its outcome.
func callbackReceiver(expectedState string) callback.ReceiveFunc[*CallbackResult] {
	return func(r *http.Request, _ []byte) callback.Result[*CallbackResult] {
		query := r.URL.Query()
		result := &CallbackResult{
			Code:             query.Get("code"),
			State:            query.Get("state"),
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		}

		err := result.classify(expectedState)
		var page string
		status := http.StatusOK
		switch err.(type) {
		case nil:
			page = successPage()
		case *UserCancelledError:
			page = cancelledPage()
		case *AuthorizationError:
			page = errorPage(result.Error, result.ErrorDescription)
		default:
			status = http.StatusBadRequest
			page = errorPage("invalid_request", err.Error())
		}

		return callback.Result[*CallbackResult]{
			Settle: true,
			Value:  result,
			Err:    err,
			Reply:  callback.HTMLReply(status, page),
		}
	}
}
