package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"agenthook/internal/agent"
	"agenthook/internal/callback"
	"agenthook/internal/events"
	"agenthook/internal/tunnel"
	"agenthook/internal/webhook"
	"agenthook/pkg/logging"
	pkgstrings "agenthook/pkg/strings"
	"agenthook/pkg/task"
)

type serveOptions struct {
	port   int
	path   string
	tunnel bool
	json   bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a long-lived webhook listener and print every delivery",
		Long: `Starts a shared webhook listener under the configured path prefix. Every
verified status change and report notification is printed as it arrives,
whatever operation it belongs to. A summary of the session is printed on
shutdown (Ctrl+C).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", -1, "Port to listen on (default: webhook.port)")
	cmd.Flags().StringVar(&opts.path, "path", "", "Path prefix (default: webhook.path)")
	cmd.Flags().BoolVar(&opts.tunnel, "tunnel", false, "Expose the listener through the tunnel command")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print deliveries as JSON lines")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	wh := cfg.Webhook
	if opts.port >= 0 {
		wh.Port = opts.port
	}
	if opts.path != "" {
		wh.Path = opts.path
	}

	recorder := &events.Recorder{}
	emitter := events.NewEmitter(events.SinkFunc(func(e events.Event) {
		events.LogSink{}.Emit(e)
		recorder.Emit(e)
	}))

	printer := &deliveryPrinter{w: cmd.OutOrStdout(), json: opts.json}
	router := webhook.NewRouter(emitter)
	router.SetFallback(webhook.HandlerFunc(printer.status))
	router.SetNotificationHandler(printer.notification)

	var kinds []task.Kind
	if len(wh.ReportKinds) > 0 {
		kinds = wh.Kinds()
	}
	correlator := webhook.NewCorrelator(webhook.CorrelatorOptions{
		Verifier:               webhook.NewSignatureVerifier(wh.Secret, wh.SignatureHeader),
		ReportKinds:            kinds,
		Router:                 router,
		Events:                 emitter,
		MaxClarificationRounds: wh.MaxClarificationRounds,
		PathPrefix:             wh.Path,
	})
	defer correlator.Close()

	dispatcher := callback.NewDispatcher(callback.Config{
		Host: wh.Host,
		Port: wh.Port,
		Path: wh.Path,
		ID:   "agenthook",
	}, correlator)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	base, err := dispatcher.Start(ctx)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	if opts.tunnel || cfg.Tunnel.Enabled {
		exposer := tunnel.New(agent.TunnelConfig(cfg.Tunnel), emitter)
		dispatcher.OnClose(exposer.Close)
		public, err := exposer.Start(ctx, dispatcher.Port())
		if err != nil {
			return err
		}
		base = public

		g.Go(func() error {
			select {
			case <-exposer.Done():
				return fmt.Errorf("tunnel process exited")
			case <-ctx.Done():
				return nil
			}
		})
	} else if wh.PublicURL != "" {
		base = wh.PublicURL
	}

	path := strings.TrimSuffix(wh.Path, "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	prefix := strings.TrimSuffix(base, "/") + path
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s/%s\n",
		text.FgHiBlue.Sprint("Listening for webhooks at"), prefix, webhook.MacroOperationID)
	logging.Info("Serve", "Webhook listener ready on %s", dispatcher.URL())

	g.Go(func() error {
		<-ctx.Done()
		return dispatcher.Close()
	})

	err = g.Wait()
	if !opts.json {
		printSummary(cmd.ErrOrStderr(), recorder.Events())
	}
	return err
}

// deliveryPrinter writes one line per delivery.
type deliveryPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

func (p *deliveryPrinter) status(_ context.Context, cb *webhook.CallbackPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		return p.writeJSON(payloadView(cb))
	}
	line := fmt.Sprintf("%s %-14s %s %s",
		time.Now().Format(time.TimeOnly),
		colorStatus(cb.Status),
		cb.OperationID,
		text.Faint.Sprint(string(cb.TaskKind)))
	if cb.Message != "" {
		line += " " + pkgstrings.SingleLine(cb.Message, pkgstrings.MaxCellLen)
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func (p *deliveryPrinter) notification(_ context.Context, n *webhook.NotificationPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		return p.writeJSON(n)
	}
	_, err := fmt.Fprintf(p.w, "%s %-14s %s %s #%d\n",
		time.Now().Format(time.TimeOnly),
		text.FgCyan.Sprint(string(n.NotificationType)),
		n.OperationID,
		text.Faint.Sprint(string(n.TaskKind)),
		n.SequenceNumber)
	return err
}

func (p *deliveryPrinter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.w, string(data))
	return err
}

// printSummary counts the session's events by reason.
func printSummary(w io.Writer, evs []events.Event) {
	if len(evs) == 0 {
		return
	}

	counts := map[events.EventReason]int{}
	for _, e := range evs {
		counts[e.Reason]++
	}
	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("EVENT"),
		text.FgHiCyan.Sprint("COUNT"),
	})
	for _, r := range reasons {
		t.AppendRow(table.Row{r, counts[events.EventReason(r)]})
	}
	t.Render()
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
