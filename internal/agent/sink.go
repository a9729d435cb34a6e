package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"agenthook/internal/callback"
	"agenthook/internal/completion"
	"agenthook/internal/config"
	"agenthook/internal/tunnel"
	"agenthook/internal/webhook"
)

// sink receives the webhook for one round of an operation.
type sink interface {
	URL() string
	Wait(ctx context.Context, timeout time.Duration) (*webhook.CallbackPayload, error)
	// Release gives up on waiting while leaving the operation reachable
	// where that is possible.
	Release()
	Close() error
}

// serverSink is a one-shot listener, possibly exposed through a tunnel.
type serverSink struct {
	server *callback.Server[*webhook.CallbackPayload]
	url    string
}

func (s *serverSink) URL() string { return s.url }

func (s *serverSink) Wait(ctx context.Context, timeout time.Duration) (*webhook.CallbackPayload, error) {
	if timeout <= 0 {
		_ = s.server.Close()
		return nil, &completion.TimeoutError{Subject: "webhook"}
	}
	return s.server.Wait(ctx, timeout)
}

func (s *serverSink) Release() { _ = s.server.Close() }

func (s *serverSink) Close() error { return s.server.Close() }

// correlatorSink is an operation registered with a shared Correlator.
type correlatorSink struct {
	correlator *webhook.Correlator
	op         *webhook.Operation
	url        string
}

func (s *correlatorSink) URL() string { return s.url }

func (s *correlatorSink) Wait(ctx context.Context, _ time.Duration) (*webhook.CallbackPayload, error) {
	return s.op.Wait(ctx)
}

func (s *correlatorSink) Release() {}

func (s *correlatorSink) Close() error {
	if !s.op.Future().Settled() {
		s.correlator.Cancel(s.op.ID)
	}
	return nil
}

// openSink arranges delivery of the next webhook for op.
func (e *Executor) openSink(ctx context.Context, op *webhook.Operation) (sink, error) {
	params := webhook.URLParams{
		AgentID:     op.AgentID,
		TaskKind:    string(op.TaskKind),
		OperationID: op.ID,
	}
	if e.opts.Correlator != nil {
		return e.trackSink(op, params)
	}
	return e.startServer(ctx, op, params)
}

func (e *Executor) trackSink(op *webhook.Operation, params webhook.URLParams) (sink, error) {
	tmpl := e.template()
	if e.opts.PublicBaseURL == "" && !isAbsolute(tmpl) {
		return nil, fmt.Errorf("shared listener has no public URL for operation %s", op.ID)
	}
	tracked, err := e.opts.Correlator.Track(op.ID, op.TaskKind, op.AgentID, op.Remaining())
	if err != nil {
		return nil, err
	}
	return &correlatorSink{
		correlator: e.opts.Correlator,
		op:         tracked,
		url:        webhook.ResolveURL(e.opts.PublicBaseURL, tmpl, params),
	}, nil
}

// startServer starts a listener bound to exactly the path of this
// operation's webhook URL.
func (e *Executor) startServer(ctx context.Context, op *webhook.Operation, params webhook.URLParams) (sink, error) {
	tmpl := e.template()
	built := webhook.BuildURL(tmpl, params)
	path := built
	if isAbsolute(built) {
		u, err := url.Parse(built)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook URL %q: %w", built, err)
		}
		path = u.Path
	}

	wh := e.opts.Webhook
	server := callback.NewWebhookServer(callback.Config{
		Host: wh.Host,
		Port: wh.Port,
		Path: path,
	}, callback.WebhookOptions{
		OperationID: op.ID,
		TaskKind:    op.TaskKind,
		Intake:      e.intake,
		Router:      e.opts.Router,
	})
	if _, err := server.Start(ctx); err != nil {
		return nil, err
	}
	if isAbsolute(built) {
		return &serverSink{server: server, url: built}, nil
	}

	base := wh.PublicURL
	if e.opts.Tunnel.Enabled {
		exposer := tunnel.New(TunnelConfig(e.opts.Tunnel), e.opts.Events)
		server.OnClose(exposer.Close)
		publicURL, err := exposer.Start(ctx, server.Port())
		if err != nil {
			_ = server.Close()
			return nil, err
		}
		base = publicURL
	}
	if base == "" {
		base = server.BaseURL()
	}
	return &serverSink{server: server, url: webhook.ResolveURL(base, tmpl, params)}, nil
}

// TunnelConfig converts the configured tunnel settings.
func TunnelConfig(t config.TunnelConfig) tunnel.Config {
	cfg := tunnel.Config{
		Command:          t.Command,
		Args:             t.Args,
		DiscoveryTimeout: t.DiscoveryTimeout,
		GracePeriod:      t.GracePeriod,
	}
	if cfg.Command == tunnel.DefaultCommand && len(cfg.Args) == 0 {
		cfg.Args = tunnel.DefaultArgs
	}
	return cfg
}

// template returns the configured URL template, or the webhook path with
// the operation id appended.
func (e *Executor) template() string {
	if e.opts.Webhook.URLTemplate != "" {
		return e.opts.Webhook.URLTemplate
	}
	path := e.opts.Webhook.Path
	if path == "" {
		path = callback.DefaultPath
	}
	return strings.TrimSuffix(path, "/") + "/" + webhook.MacroOperationID
}

func isAbsolute(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
