package callback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"agenthook/internal/completion"
	"agenthook/pkg/logging"
)

const subsystem = "Callback"

const (
	// DefaultHost is the interface the listener binds when none is configured.
	DefaultHost = "127.0.0.1"

	// DefaultPath is the path bound when none is configured.
	DefaultPath = "/webhook"

	// DefaultShutdownDelay keeps the listener up briefly after settling so
	// the response, or a browser page, finishes loading.
	DefaultShutdownDelay = time.Second

	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes = 1 << 20
)

// Config describes where a listener binds.
type Config struct {
	Host string
	// Port 0 picks an ephemeral port.
	Port int
	Path string
	// ID is reported by the health probe.
	ID string
	// Method carries deliveries. Defaults to POST.
	Method string
	// ShutdownDelay applies to blocking mode only. Negative disables the
	// automatic shutdown.
	ShutdownDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if !strings.HasPrefix(c.Path, "/") {
		c.Path = "/" + c.Path
	}
	if c.Method == "" {
		c.Method = http.MethodPost
	}
	if c.ShutdownDelay == 0 {
		c.ShutdownDelay = DefaultShutdownDelay
	}
	return c
}

// listener owns the socket and the http.Server shared by both modes.
type listener struct {
	cfg Config

	mu      sync.Mutex
	server  *http.Server
	ln      net.Listener
	baseURL string
	serveCh chan error
	stopped chan struct{}

	closer completion.Closer
}

func (l *listener) start(ctx context.Context, handler http.Handler) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.server != nil {
		return "", errors.New("listener already started")
	}
	if l.closer.Closed() {
		return "", errors.New("listener closed")
	}

	addr := net.JoinHostPort(l.cfg.Host, fmt.Sprintf("%d", l.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback listener on %s: %w", addr, err)
	}

	l.ln = ln
	l.cfg.Port = ln.Addr().(*net.TCPAddr).Port
	l.baseURL = fmt.Sprintf("http://%s", net.JoinHostPort(urlHost(l.cfg.Host), fmt.Sprintf("%d", l.cfg.Port)))
	l.serveCh = make(chan error, 1)
	l.stopped = make(chan struct{})
	l.server = &http.Server{
		Handler:           securityHeaders(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	server := l.server
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.serveCh <- err
		}
		close(l.serveCh)
	}()

	l.closer.Add(func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		_ = ln.Close()
		return err
	})
	stopped := l.stopped
	l.closer.Add(func() error {
		close(stopped)
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
			_ = l.close()
		case <-stopped:
		}
	}()

	logging.Debug(subsystem, "Listening on %s%s", l.baseURL, l.cfg.Path)
	return l.baseURL, nil
}

func (l *listener) close() error {
	return l.closer.Close()
}

func (l *listener) port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Port
}

func (l *listener) url() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.baseURL == "" {
		return ""
	}
	return l.baseURL + l.cfg.Path
}

func (l *listener) base() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.baseURL
}

func (l *listener) healthProbe(w http.ResponseWriter) {
	writeReply(w, JSONReply(http.StatusOK, map[string]string{"status": "ready", "id": l.cfg.ID}))
}

func (l *listener) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeReply(w, JSONReply(http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"}))
		return nil, false
	}
	return body, true
}

// urlHost maps wildcard bind addresses to a host a local client can dial.
func urlHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		return "localhost"
	case "127.0.0.1":
		return "localhost"
	}
	return host
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'; script-src 'unsafe-inline'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
