package tunnel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExited is returned when the tunnel process exits before printing a URL.
var ErrExited = errors.New("tunnel process exited before reporting a URL")

// Error describes a tunnel that could not provide a public URL.
type Error struct {
	Command string
	Err     error
	// Output holds the last lines the process printed.
	Output []string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("tunnel %s: %v", e.Command, e.Err)
	if len(e.Output) > 0 {
		msg += "\n  " + strings.Join(e.Output, "\n  ")
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}
