package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"agenthook/internal/config"
	"agenthook/internal/oauth"
	pkgauth "agenthook/pkg/auth"
)

// Auth-specific flags
var (
	logoutScope  string
	statusOutput string
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage OAuth credentials for agents",
	Long: `Manage OAuth credentials for agents configured with "oauth: true".

Examples:
  agenthook auth login sales     # Authorize in the browser
  agenthook auth status          # Show credentials for every OAuth agent
  agenthook auth logout sales    # Forget the agent's tokens`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login AGENT",
	Short: "Authorize an agent in the browser",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout AGENT",
	Short: "Remove stored credentials for an agent",
	Long: `Remove stored credentials for an agent.

--scope selects what is removed:
  tokens    access and refresh tokens (default)
  client    the registered client, forcing a new registration
  verifier  a pending PKCE verifier
  all       everything stored for the agent`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status [AGENT]",
	Short: "Show authorization status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthStatus,
}

func init() {
	authStatusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format: table, json or yaml")
	authLogoutCmd.Flags().StringVar(&logoutScope, "scope", string(oauth.ScopeTokens), "What to remove: tokens, client, verifier or all")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

// authCoordinator loads the configuration and builds the coordinator for
// an OAuth agent.
func authCoordinator(agentID string) (*session, *oauth.Coordinator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := lookupAgent(cfg, agentID)
	if err != nil {
		return nil, nil, err
	}
	if !a.OAuth {
		return nil, nil, fmt.Errorf("agent %q does not use OAuth", agentID)
	}

	sess, err := newSession(cfg)
	if err != nil {
		return nil, nil, err
	}
	c, err := sess.coordinator(a)
	if err != nil {
		_ = sess.Close()
		return nil, nil, err
	}
	return sess, c, nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	sess, c, err := authCoordinator(args[0])
	if err != nil {
		return err
	}
	defer sess.Close()

	if !sess.cfg.OAuth.FileMode {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s credentials are kept in memory and will be lost when this command exits\n",
			text.FgYellow.Sprint("Warning:"))
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Opening the browser to authorize %s...\n", args[0])

	tok, err := c.Authorize(cmd.Context(), nil)
	if err != nil {
		if oauth.IsUserCancelled(err) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", text.FgYellow.Sprint("Cancelled:"), err)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Authorized %s", text.FgGreen.Sprint("✓"), args[0])
	if !tok.Expiry.IsZero() {
		fmt.Fprintf(cmd.OutOrStdout(), " (expires %s)", formatExpiry(tok.Expiry, time.Now()))
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	scope, err := oauth.ParseScope(logoutScope)
	if err != nil {
		return err
	}
	sess, c, err := authCoordinator(args[0])
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := c.Invalidate(scope); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %s for %s\n", text.FgGreen.Sprint("✓"), scope, args[0])
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(statusOutput)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var agents []config.AgentConfig
	if len(args) == 1 {
		a, err := lookupAgent(cfg, args[0])
		if err != nil {
			return err
		}
		if !a.OAuth {
			return fmt.Errorf("agent %q does not use OAuth", a.ID)
		}
		agents = append(agents, a)
	} else {
		for _, a := range cfg.Agents {
			if a.OAuth {
				agents = append(agents, a)
			}
		}
	}
	if len(agents) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", text.FgYellow.Sprint("📋"), text.FgYellow.Sprint("No OAuth agents configured"))
		return nil
	}

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	statuses := make([]*oauth.Status, 0, len(agents))
	for _, a := range agents {
		c, err := sess.coordinator(a)
		if err != nil {
			return err
		}
		st, err := c.Status()
		if err != nil {
			return err
		}
		statuses = append(statuses, st)
	}

	if format != OutputFormatTable {
		return printStructured(cmd.OutOrStdout(), format, authStatusResponse(statuses))
	}
	printAuthStatus(cmd.OutOrStdout(), statuses, time.Now())
	return nil
}

func authStatusResponse(statuses []*oauth.Status) pkgauth.StatusResponse {
	resp := pkgauth.StatusResponse{Agents: make([]pkgauth.AgentAuthStatus, 0, len(statuses))}
	for _, st := range statuses {
		a := pkgauth.AgentAuthStatus{
			AgentID:         st.AgentID,
			State:           st.State.String(),
			Issuer:          st.Issuer,
			ClientID:        st.ClientID,
			HasRefreshToken: st.HasRefreshToken,
		}
		if !st.Expiry.IsZero() {
			expiry := st.Expiry
			a.ExpiresAt = &expiry
		}
		switch st.State {
		case oauth.StateAuthorized:
		case oauth.StateExpired:
			a.LoginRequired = !st.HasRefreshToken
		default:
			a.LoginRequired = true
		}
		resp.Agents = append(resp.Agents, a)
	}
	return resp
}

func printAuthStatus(w io.Writer, statuses []*oauth.Status, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("AGENT"),
		text.FgHiCyan.Sprint("STATE"),
		text.FgHiCyan.Sprint("EXPIRES"),
		text.FgHiCyan.Sprint("REFRESH"),
		text.FgHiCyan.Sprint("CLIENT"),
		text.FgHiCyan.Sprint("ISSUER"),
	})

	for _, st := range statuses {
		expires := "-"
		if !st.Expiry.IsZero() {
			expires = formatExpiry(st.Expiry, now)
		}
		refresh := "no"
		if st.HasRefreshToken {
			refresh = "yes"
		}
		t.AppendRow(table.Row{
			st.AgentID,
			colorState(st.State),
			expires,
			refresh,
			orDash(st.ClientID),
			orDash(st.Issuer),
		})
	}
	t.Render()
}

func colorState(s oauth.State) string {
	switch s {
	case oauth.StateAuthorized:
		return text.FgGreen.Sprint(s.String())
	case oauth.StateExpired, oauth.StatePendingAuthorization, oauth.StateExchanging:
		return text.FgYellow.Sprint(s.String())
	case oauth.StateInvalid:
		return text.FgRed.Sprint(s.String())
	default:
		return text.Faint.Sprint(s.String())
	}
}

// formatExpiry renders an expiry relative to now, e.g. "in 59m" or "2h ago".
func formatExpiry(expiry, now time.Time) string {
	d := expiry.Sub(now)
	if d >= 0 {
		return "in " + shortDuration(d)
	}
	return shortDuration(-d) + " ago"
}

func shortDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
