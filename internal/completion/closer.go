package completion

import (
	"errors"
	"sync"
)

// Closer collects cleanup functions and runs them exactly once.
// Functions run in reverse registration order. Functions added after Close
// has run are executed immediately.
type Closer struct {
	mu     sync.Mutex
	fns    []func() error
	closed bool
	once   sync.Once
	err    error
}

// Add registers a cleanup function.
func (c *Closer) Add(fn func() error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = fn()
		return
	}
	c.fns = append(c.fns, fn)
	c.mu.Unlock()
}

// Close runs every registered cleanup function once and returns the joined
// errors. Subsequent calls return the same result without running anything.
func (c *Closer) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		fns := c.fns
		c.fns = nil
		c.mu.Unlock()

		var errs []error
		for i := len(fns) - 1; i >= 0; i-- {
			if err := fns[i](); err != nil {
				errs = append(errs, err)
			}
		}
		c.err = errors.Join(errs...)
	})
	return c.err
}

// Closed reports whether Close has been called.
func (c *Closer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
