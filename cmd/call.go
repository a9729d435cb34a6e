package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"agenthook/internal/agent"
	"agenthook/internal/webhook"
	"agenthook/pkg/task"
)

type callOptions struct {
	params      string
	sets        []string
	timeout     time.Duration
	tunnel      bool
	noWait      bool
	operationID string
	output      string
	quiet       bool
	interactive bool
}

func newCallCmd() *cobra.Command {
	opts := &callOptions{}

	cmd := &cobra.Command{
		Use:   "call AGENT TASK",
		Short: "Run a task on a remote agent and wait for its result",
		Long: `Calls TASK on the configured AGENT. If the agent answers asynchronously,
a webhook listener is started for the operation and the command waits for
the agent to post the final status.

Examples:
  agenthook call sales get_products --params '{"brief":"coffee"}'
  agenthook call sales create_media_buy --params @buy.json --tunnel
  agenthook call sales create_media_buy --set budget=5000 --no-wait`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, args[0], task.Kind(args[1]), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.params, "params", "p", "", "Task parameters as a JSON object, or @file")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "Set a single parameter (key=value, repeatable)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "How long to wait for the result (default: webhook.timeout)")
	cmd.Flags().BoolVar(&opts.tunnel, "tunnel", false, "Expose the webhook listener through the tunnel command")
	cmd.Flags().BoolVar(&opts.noWait, "no-wait", false, "Return once the agent has accepted the task")
	cmd.Flags().StringVar(&opts.operationID, "operation-id", "", "Operation id to use (default: generated)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress the progress spinner")
	cmd.Flags().BoolVar(&opts.interactive, "interactive", true, "Answer input-required questions on the terminal")

	return cmd
}

func runCall(cmd *cobra.Command, agentID string, kind task.Kind, opts *callOptions) error {
	format, err := parseOutputFormat(opts.output)
	if err != nil {
		return err
	}
	params, err := parseParams(opts.params, opts.sets, os.ReadFile)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.tunnel {
		cfg.Tunnel.Enabled = true
	}

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	a, err := sess.agent(agentID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var s *spinner.Spinner
	if !opts.quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Writer = cmd.ErrOrStderr()
		s.Suffix = fmt.Sprintf(" Calling %s on %s...", kind, agentID)
		s.Start()
	}
	stopSpinner := func() {
		if s != nil {
			s.Stop()
		}
	}

	var input agent.InputHandler
	if opts.interactive {
		input = promptInput(cmd.InOrStdin(), cmd.ErrOrStderr(), stopSpinner)
	}

	executor := agent.NewExecutor(agent.Options{
		Webhook: cfg.Webhook,
		Tunnel:  cfg.Tunnel,
		Events:  sess.emitter,
		Input:   input,
	})
	result, err := executor.Execute(ctx, a, agent.ExecuteRequest{
		OperationID: opts.operationID,
		TaskKind:    kind,
		Params:      params,
		Timeout:     opts.timeout,
		NoWait:      opts.noWait,
	})
	stopSpinner()

	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), format, newResultView(result))
}

// promptInput asks the question on w and reads one line of answer from r.
// An empty answer cancels the operation.
func promptInput(r io.Reader, w io.Writer, before func()) agent.InputHandler {
	reader := bufio.NewReader(r)
	return func(ctx context.Context, p *webhook.CallbackPayload) (string, error) {
		if before != nil {
			before()
		}

		question := p.Message
		if question == "" {
			question = "The agent needs more input"
		}
		fmt.Fprintf(w, "%s %s\n", text.FgYellow.Sprint("?"), question)
		fmt.Fprint(w, "> ")

		type answer struct {
			line string
			err  error
		}
		ch := make(chan answer, 1)
		go func() {
			line, err := reader.ReadString('\n')
			ch <- answer{line: line, err: err}
		}()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case a := <-ch:
			line := strings.TrimSpace(a.line)
			if line == "" {
				if a.err != nil && a.err != io.EOF {
					return "", a.err
				}
				return "", fmt.Errorf("no answer given for operation %s", p.OperationID)
			}
			return line, nil
		}
	}
}

func init() {
	rootCmd.AddCommand(newCallCmd())
}
