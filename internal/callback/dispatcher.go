package callback

import (
	"context"
	"net/http"
	"strings"
)

// Dispatcher is a long-lived listener that forwards every delivery under its
// path prefix to a handler. Correlation is the handler's job.
type Dispatcher struct {
	listener
	handler http.Handler
}

// NewDispatcher creates a library-mode listener. Requests to Path and to
// any path below it are forwarded to h.
func NewDispatcher(cfg Config, h http.Handler) *Dispatcher {
	cfg.ShutdownDelay = -1
	return &Dispatcher{
		listener: listener{cfg: cfg.withDefaults()},
		handler:  h,
	}
}

// Start binds the listener and returns its base URL, without the path.
func (d *Dispatcher) Start(ctx context.Context) (string, error) {
	prefix := strings.TrimSuffix(d.cfg.Path, "/")

	mux := http.NewServeMux()
	if prefix != "" {
		mux.HandleFunc(prefix, d.handle)
	}
	mux.HandleFunc(prefix+"/", d.handle)

	return d.start(ctx, mux)
}

// URL returns the base URL joined with the path prefix.
func (d *Dispatcher) URL() string {
	return d.url()
}

// BaseURL returns scheme, host and port.
func (d *Dispatcher) BaseURL() string {
	return d.base()
}

// Port returns the bound port once started.
func (d *Dispatcher) Port() int {
	return d.port()
}

// OnClose registers cleanup to run when the dispatcher closes.
func (d *Dispatcher) OnClose(fn func() error) {
	d.closer.Add(fn)
}

// Close stops the listener and runs registered cleanup exactly once.
func (d *Dispatcher) Close() error {
	return d.close()
}

func (d *Dispatcher) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != d.cfg.Method {
		d.healthProbe(w)
		return
	}
	d.handler.ServeHTTP(w, r)
}
