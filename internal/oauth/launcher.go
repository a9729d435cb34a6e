package oauth

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// Launcher opens a URL outside the process, normally in a browser.
type Launcher interface {
	OpenURL(url string) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(url string) error

func (f LauncherFunc) OpenURL(url string) error { return f(url) }

// commandLauncher starts a platform command with the URL as last argument
// and does not wait for it.
type commandLauncher struct {
	name string
	args []string
}

func (l commandLauncher) OpenURL(url string) error {
	args := append(append([]string(nil), l.args...), url)
	cmd := exec.Command(l.name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// FallbackLauncher tries Launcher and prints the URL when it is nil or
// fails. OpenURL never returns an error.
type FallbackLauncher struct {
	Launcher Launcher
	Out      io.Writer
}

// NewDefaultLauncher returns the platform launcher with a fallback that
// prints to stderr.
func NewDefaultLauncher() *FallbackLauncher {
	return &FallbackLauncher{Launcher: platformLauncher(), Out: os.Stderr}
}

func (l *FallbackLauncher) OpenURL(url string) error {
	if l.Launcher != nil {
		err := l.Launcher.OpenURL(url)
		if err == nil {
			return nil
		}
		slog.Debug("Browser launch failed, printing URL instead", "error", err)
	}

	out := l.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, "Open this URL in your browser to authorize:\n\n  %s\n\n", url)
	return nil
}
