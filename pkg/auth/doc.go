// Package auth holds the machine-readable authorization status reported by
// `agenthook auth status --output json|yaml`, so scripts can check whether
// an agent needs a browser login before calling it.
package auth
