package webhook

import (
	"fmt"
	"net/url"
	"strings"
)

// Macros recognised in webhook URL templates. Substitution is literal and
// case-sensitive; values are inserted without URL encoding.
const (
	MacroAgentID     = "{agent_id}"
	MacroTaskType    = "{task_type}"
	MacroOperationID = "{operation_id}"
)

// URLParams holds the values substituted into a webhook URL template.
type URLParams struct {
	AgentID     string
	TaskKind    string
	OperationID string
}

// BuildURL replaces every occurrence of each macro in template. Text that
// is not one of the three macros, including unknown {placeholders}, is left
// untouched.
func BuildURL(template string, p URLParams) string {
	r := strings.NewReplacer(
		MacroAgentID, p.AgentID,
		MacroTaskType, p.TaskKind,
		MacroOperationID, p.OperationID,
	)
	return r.Replace(template)
}

// ResolveURL builds the webhook URL for p. Templates that are only a path
// ("/webhook/{operation_id}") are joined onto base, which is normally the
// listener's or tunnel's public address.
func ResolveURL(base, template string, p URLParams) string {
	built := BuildURL(template, p)
	if strings.HasPrefix(built, "http://") || strings.HasPrefix(built, "https://") {
		return built
	}
	if !strings.HasPrefix(built, "/") {
		built = "/" + built
	}
	return strings.TrimSuffix(base, "/") + built
}

// ValidateTemplate checks a template at configuration time. It must carry
// the operation id macro, since that is the correlation key, and must
// parse as a URL once the macros are filled in.
func ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("%w: template is empty", ErrInvalidTemplate)
	}
	if !strings.Contains(template, MacroOperationID) {
		return fmt.Errorf("%w: %q does not contain %s", ErrInvalidTemplate, template, MacroOperationID)
	}

	sample := BuildURL(template, URLParams{AgentID: "agent", TaskKind: "task", OperationID: "op"})
	u, err := url.Parse(sample)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if u.IsAbs() && u.Host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidTemplate, template)
	}
	if !u.IsAbs() && !strings.HasPrefix(u.Path, "/") {
		return fmt.Errorf("%w: relative template %q must start with /", ErrInvalidTemplate, template)
	}
	return nil
}
