package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"agenthook/internal/agent"
	"agenthook/internal/completion"
	"agenthook/internal/oauth"
	"agenthook/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates the agent needs credentials that are not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed or was cancelled.
	ExitCodeAuthFailed = 3
	// ExitCodeTimeout indicates no result arrived before the deadline.
	ExitCodeTimeout = 4
)

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command for the agenthook application.
var rootCmd = &cobra.Command{
	Use:   "agenthook",
	Short: "Call remote agents and receive their results by webhook",
	Long: `agenthook calls remote agents over MCP or A2A and waits for their
results, either in the response or through an HTTP webhook served on this
machine and optionally exposed through a tunnel.

Agents, the webhook listener and OAuth settings are read from
~/.config/agenthook/config.yaml.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.InitForCLI(logging.ParseLevel(logLevel), os.Stderr)
	},
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
	agent.ClientVersion = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code describing the failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "agenthook version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps an error to a semantic exit code for scripting.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	if agent.IsAuthRequired(err) || errors.Is(err, oauth.ErrAuthRequired) {
		return ExitCodeAuthRequired
	}

	var cancelled *oauth.UserCancelledError
	var authErr *oauth.AuthorizationError
	if errors.As(err, &cancelled) || errors.As(err, &authErr) ||
		errors.Is(err, oauth.ErrStateMismatch) ||
		errors.Is(err, oauth.ErrProtocolViolation) ||
		errors.Is(err, oauth.ErrMissingVerifier) {
		return ExitCodeAuthFailed
	}

	if completion.IsTimeout(err) {
		return ExitCodeTimeout
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default: ~/.config/agenthook)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(newVersionCmd())
}
