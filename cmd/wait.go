package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"agenthook/internal/agent"
	"agenthook/internal/callback"
	"agenthook/internal/tunnel"
	"agenthook/internal/webhook"
	"agenthook/pkg/task"
)

type waitOptions struct {
	operationID string
	taskKind    string
	port        int
	path        string
	secret      string
	timeout     time.Duration
	tunnel      bool
	output      string
}

func newWaitCmd() *cobra.Command {
	opts := &waitOptions{}

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Listen for the webhook of an operation started elsewhere",
		Long: `Starts a one-shot webhook listener at <path>/<operation-id>, prints its
URL and waits until the agent posts a final status for the operation.

Use this when the task was submitted by another tool and only the
callback needs to be received.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWait(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.operationID, "operation-id", "", "Operation id to wait for (default: generated)")
	cmd.Flags().StringVar(&opts.taskKind, "task", "", "Task kind, used when the body omits it")
	cmd.Flags().IntVar(&opts.port, "port", -1, "Port to listen on (default: webhook.port)")
	cmd.Flags().StringVar(&opts.path, "path", "", "Path prefix (default: webhook.path)")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "HMAC secret for signature verification (default: webhook.secret)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "How long to wait (default: webhook.timeout)")
	cmd.Flags().BoolVar(&opts.tunnel, "tunnel", false, "Expose the listener through the tunnel command")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json or yaml")

	return cmd
}

func runWait(cmd *cobra.Command, opts *waitOptions) error {
	format, err := parseOutputFormat(opts.output)
	if err != nil {
		return err
	}
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
	if opts.secret != "" {
		wh.Secret = opts.secret
	}
	timeout := opts.timeout
	if timeout <= 0 {
		timeout = wh.Timeout
	}

	opID := opts.operationID
	if opID == "" {
		opID = agent.NewOperationID()
	}
	path := strings.TrimSuffix(wh.Path, "/") + "/" + opID

	var kinds []task.Kind
	if len(wh.ReportKinds) > 0 {
		kinds = wh.Kinds()
	}
	sess, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	server := callback.NewWebhookServer(callback.Config{
		Host: wh.Host,
		Port: wh.Port,
		Path: path,
	}, callback.WebhookOptions{
		OperationID: opID,
		TaskKind:    task.Kind(opts.taskKind),
		Intake: &webhook.Intake{
			Verifier:    webhook.NewSignatureVerifier(wh.Secret, wh.SignatureHeader),
			ReportKinds: kinds,
			Events:      sess.emitter,
		},
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url, err := server.Start(ctx)
	if err != nil {
		return err
	}
	defer server.Close()

	if opts.tunnel || cfg.Tunnel.Enabled {
		exposer := tunnel.New(agent.TunnelConfig(cfg.Tunnel), sess.emitter)
		server.OnClose(exposer.Close)
		public, err := exposer.Start(ctx, server.Port())
		if err != nil {
			return err
		}
		url = strings.TrimSuffix(public, "/") + path
	} else if wh.PublicURL != "" {
		url = strings.TrimSuffix(wh.PublicURL, "/") + path
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", text.FgHiBlue.Sprint("Waiting for webhook at"), url)

	p, err := server.Wait(ctx, timeout)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), format, payloadView(p))
}

func init() {
	rootCmd.AddCommand(newWaitCmd())
}
