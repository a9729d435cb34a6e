package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"agenthook/internal/completion"
	"agenthook/internal/events"
	"agenthook/pkg/logging"
)

const subsystem = "Tunnel"

const (
	// DefaultCommand is the tunnel program run when none is configured.
	DefaultCommand = "cloudflared"

	// DefaultDiscoveryTimeout bounds how long Start waits for a URL.
	DefaultDiscoveryTimeout = 10 * time.Second

	// DefaultGracePeriod is how long Close waits after asking the process
	// to exit before killing it.
	DefaultGracePeriod = 3 * time.Second

	// PortPlaceholder in Args is replaced with the local port.
	PortPlaceholder = "{port}"

	tailLines = 10
)

// DefaultArgs are the arguments used with DefaultCommand.
var DefaultArgs = []string{"tunnel", "--no-autoupdate", "--url", "http://localhost:" + PortPlaceholder}

// Config describes the tunnel program.
type Config struct {
	Command          string
	Args             []string
	Env              []string
	DiscoveryTimeout time.Duration
	GracePeriod      time.Duration
}

// Exposer runs one tunnel process for the lifetime of a listener.
type Exposer struct {
	cfg    Config
	events *events.Emitter

	mu  sync.Mutex
	cmd *exec.Cmd
	url string

	discovered     chan struct{}
	discoveredOnce sync.Once
	done           chan struct{}
	waitErr        error

	closeOnce sync.Once
}

// New creates an Exposer. emitter may be nil.
func New(cfg Config, emitter *events.Emitter) *Exposer {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
		if len(cfg.Args) == 0 {
			cfg.Args = DefaultArgs
		}
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	return &Exposer{
		cfg:        cfg,
		events:     emitter,
		discovered: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the tunnel program for port and returns the public URL it
// reports. If no URL appears within the discovery timeout, or the process
// fails to start or exits first, the process is stopped and an error is
// returned.
func (e *Exposer) Start(ctx context.Context, port int) (string, error) {
	e.mu.Lock()
	if e.cmd != nil {
		e.mu.Unlock()
		return "", errors.New("tunnel already started")
	}

	args := make([]string, len(e.cfg.Args))
	for i, a := range e.cfg.Args {
		args[i] = strings.ReplaceAll(a, PortPlaceholder, strconv.Itoa(port))
	}

	cmd := exec.Command(e.cfg.Command, args...)
	if len(e.cfg.Env) > 0 {
		cmd.Env = e.cfg.Env
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.mu.Unlock()
		return "", e.fail(&Error{Command: e.cfg.Command, Err: err})
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.mu.Unlock()
		return "", e.fail(&Error{Command: e.cfg.Command, Err: err})
	}
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return "", e.fail(&Error{Command: e.cfg.Command, Err: fmt.Errorf("failed to start: %w", err)})
	}
	e.cmd = cmd
	e.mu.Unlock()

	logging.Debug(subsystem, "Started %s (pid %d) for local port %d", e.cfg.Command, cmd.Process.Pid, port)

	lines := make(chan string, 64)
	var readers sync.WaitGroup
	readers.Add(2)
	go e.pump(stdout, lines, &readers)
	go e.pump(stderr, lines, &readers)
	go func() {
		readers.Wait()
		err := cmd.Wait()
		e.mu.Lock()
		e.waitErr = err
		e.mu.Unlock()
		close(e.done)
	}()

	timer := time.NewTimer(e.cfg.DiscoveryTimeout)
	defer timer.Stop()

	var tail []string
	check := func(line string) (string, bool) {
		tail = append(tail, line)
		if len(tail) > tailLines {
			tail = tail[1:]
		}
		return ExtractURL(line)
	}

	for {
		select {
		case line := <-lines:
			if u, ok := check(line); ok {
				return e.found(u), nil
			}

		case <-e.done:
			for {
				select {
				case line := <-lines:
					if u, ok := check(line); ok {
						return e.found(u), nil
					}
					continue
				default:
				}
				break
			}
			cause := ErrExited
			e.mu.Lock()
			if e.waitErr != nil {
				cause = fmt.Errorf("%w: %v", ErrExited, e.waitErr)
			}
			e.mu.Unlock()
			return "", e.fail(&Error{Command: e.cfg.Command, Err: cause, Output: tail})

		case <-timer.C:
			_ = e.Close()
			return "", e.fail(&Error{
				Command: e.cfg.Command,
				Err:     &completion.TimeoutError{Timeout: e.cfg.DiscoveryTimeout, Subject: "tunnel URL"},
				Output:  tail,
			})

		case <-ctx.Done():
			_ = e.Close()
			return "", ctx.Err()
		}
	}
}

// URL returns the discovered public URL, or "" before discovery.
func (e *Exposer) URL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.url
}

// Done is closed when the tunnel process has exited.
func (e *Exposer) Done() <-chan struct{} {
	return e.done
}

// Close stops the tunnel process: a polite termination first, then a kill
// after the grace period. It is safe to call more than once and before Start.
func (e *Exposer) Close() error {
	e.closeOnce.Do(func() {
		e.discoveredOnce.Do(func() { close(e.discovered) })

		e.mu.Lock()
		cmd := e.cmd
		e.mu.Unlock()
		if cmd == nil || cmd.Process == nil {
			return
		}

		_ = terminate(cmd.Process)
		select {
		case <-e.done:
		case <-time.After(e.cfg.GracePeriod):
			logging.Warn(subsystem, "Tunnel process %d did not exit after %s; killing it", cmd.Process.Pid, e.cfg.GracePeriod)
			_ = signalProcess(cmd.Process, os.Kill)
			<-e.done
		}
		logging.Debug(subsystem, "Tunnel process %d stopped", cmd.Process.Pid)
	})
	return nil
}

func (e *Exposer) found(u string) string {
	e.mu.Lock()
	e.url = u
	e.mu.Unlock()
	e.discoveredOnce.Do(func() { close(e.discovered) })

	logging.Info(subsystem, "Tunnel ready at %s", u)
	e.events.Emit(events.ReasonTunnelStarted, events.EventData{Subject: u})
	return u
}

func (e *Exposer) fail(err error) error {
	logging.Error(subsystem, err, "Tunnel did not become ready")
	e.events.Emit(events.ReasonTunnelFailed, events.EventData{Subject: e.cfg.Command, Error: err.Error()})
	return err
}

// pump reads r in chunks and forwards complete lines until discovery; after
// that, output is only logged so the pipe never blocks the process.
func (e *Exposer) pump(r io.Reader, lines chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()

	var buf LineBuffer
	chunk := make([]byte, 4096)
	emit := func(line string) {
		select {
		case <-e.discovered:
			logging.Debug(subsystem, "%s", line)
		default:
			select {
			case lines <- line:
			case <-e.discovered:
				logging.Debug(subsystem, "%s", line)
			}
		}
	}

	for {
		n, err := r.Read(chunk)
		for _, line := range buf.Write(chunk[:n]) {
			emit(line)
		}
		if err != nil {
			if line, ok := buf.Flush(); ok {
				emit(line)
			}
			return
		}
	}
}

// signalProcess sends sig to a process, returning nil if the process
// has already exited (os.ErrProcessDone).
func signalProcess(proc *os.Process, sig os.Signal) error {
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
