package callback

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"agenthook/internal/completion"
	"agenthook/pkg/logging"
)

// Result is what a ReceiveFunc decides for one request.
type Result[T any] struct {
	// Settle ends the wait with Value, or with Err when it is set.
	Settle bool
	Value  T
	Err    error

	Reply Reply

	// After runs once the reply has been flushed.
	After func()
}

// ReceiveFunc interprets a request on the bound path. body is empty for
// methods other than the configured one.
type ReceiveFunc[T any] func(r *http.Request, body []byte) Result[T]

// Server is a one-shot listener that resolves a single completion from
// the first request its ReceiveFunc settles.
type Server[T any] struct {
	listener
	receive ReceiveFunc[T]
	future  *completion.Future[T]

	// handleMu serializes requests so exactly one can settle.
	handleMu sync.Mutex
}

// New creates a blocking-mode server.
func New[T any](cfg Config, receive ReceiveFunc[T]) *Server[T] {
	return &Server[T]{
		listener: listener{cfg: cfg.withDefaults()},
		receive:  receive,
		future:   completion.NewFuture[T](),
	}
}

// Start binds the listener and returns the full callback URL. The port in
// the URL is the one actually bound. Cancelling ctx stops the server.
func (s *Server[T]) Start(ctx context.Context) (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handle)
	if s.cfg.Path != "/" {
		mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
			s.healthProbe(w)
		})
	}

	if _, err := s.start(ctx, mux); err != nil {
		return "", err
	}

	go func() {
		if err, ok := <-s.serveCh; ok && err != nil {
			s.future.Reject(fmt.Errorf("callback listener failed: %w", err))
		}
	}()
	return s.url(), nil
}

// URL returns the callback URL once started.
func (s *Server[T]) URL() string {
	return s.url()
}

// BaseURL returns scheme, host and port without the path.
func (s *Server[T]) BaseURL() string {
	return s.base()
}

// Port returns the bound port once started.
func (s *Server[T]) Port() int {
	return s.port()
}

// Path returns the bound path.
func (s *Server[T]) Path() string {
	return s.cfg.Path
}

// Wait blocks until a request settles the server, timeout elapses or ctx is
// done. A timeout yields a *completion.TimeoutError. The server is closed on
// every outcome except success, where it stays up for the shutdown delay.
func (s *Server[T]) Wait(ctx context.Context, timeout time.Duration) (T, error) {
	v, err := s.future.WaitTimeout(ctx, timeout)
	if err != nil {
		_ = s.Close()
	}
	return v, err
}

// Settled reports whether a request has settled the server.
func (s *Server[T]) Settled() bool {
	return s.future.Settled()
}

// OnClose registers cleanup to run when the server closes, such as
// stopping a tunnel that exposes it.
func (s *Server[T]) OnClose(fn func() error) {
	s.closer.Add(fn)
}

// Close stops the listener and runs registered cleanup exactly once.
// Pending waiters are released.
func (s *Server[T]) Close() error {
	s.future.Reject(fmt.Errorf("callback server closed"))
	return s.close()
}

func (s *Server[T]) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != s.cfg.Method {
		s.healthProbe(w)
		return
	}

	var body []byte
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		var ok bool
		if body, ok = s.readBody(w, r); !ok {
			return
		}
	}

	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	if s.future.Settled() {
		writeReply(w, JSONReply(http.StatusOK, map[string]string{"status": "already_processed"}))
		return
	}

	res := s.receive(r, body)
	writeReply(w, res.Reply)

	if res.Settle {
		var won bool
		if res.Err != nil {
			won = s.future.Reject(res.Err)
		} else {
			won = s.future.Resolve(res.Value)
		}
		if won {
			s.scheduleShutdown()
		}
	}
	if res.After != nil {
		res.After()
	}
}

func (s *Server[T]) scheduleShutdown() {
	if s.cfg.ShutdownDelay < 0 {
		return
	}
	logging.Debug(subsystem, "Settled; closing %s in %s", s.url(), s.cfg.ShutdownDelay)
	time.AfterFunc(s.cfg.ShutdownDelay, func() {
		_ = s.close()
	})
}
