package completion

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports that a wait reached its deadline without a result.
// It is distinct from other failures so callers can decide to poll or retry.
type TimeoutError struct {
	Timeout time.Duration
	// Subject optionally names what was waited for, e.g. "webhook for op_42".
	Subject string
}

func (e *TimeoutError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Subject)
	}
	return fmt.Sprintf("timed out after %s", e.Timeout)
}

// IsTimeout reports whether err is, or wraps, a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
