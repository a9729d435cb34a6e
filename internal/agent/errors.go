package agent

import (
	"errors"
	"fmt"

	"agenthook/internal/webhook"
	pkgoauth "agenthook/pkg/oauth"
	"agenthook/pkg/task"
)

// ErrUnsupportedProtocol is returned for agents configured with an unknown protocol.
var ErrUnsupportedProtocol = errors.New("unsupported agent protocol")

// AuthRequiredError is returned when an agent rejects a call for lack of
// credentials, either with an HTTP 401 or an auth-required task status.
type AuthRequiredError struct {
	AgentID   string
	Challenge *pkgoauth.AuthChallenge
	Err       error
}

func (e *AuthRequiredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent %s requires authorization: %v", e.AgentID, e.Err)
	}
	return fmt.Sprintf("agent %s requires authorization", e.AgentID)
}

func (e *AuthRequiredError) Unwrap() error {
	return e.Err
}

// IsAuthRequired reports whether err is an *AuthRequiredError.
func IsAuthRequired(err error) bool {
	var authErr *AuthRequiredError
	return errors.As(err, &authErr)
}

// TaskFailedError is returned when an operation ends failed, rejected or canceled.
type TaskFailedError struct {
	OperationID string
	Status      task.Status
	Message     string
	Payload     *webhook.CallbackPayload
}

func (e *TaskFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("operation %s %s: %s", e.OperationID, e.Status, e.Message)
	}
	return fmt.Sprintf("operation %s %s", e.OperationID, e.Status)
}

// RPCError is a JSON-RPC error object returned by an A2A agent.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
