package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"agenthook/internal/agent"
	"agenthook/internal/webhook"
	pkgstrings "agenthook/pkg/strings"
	"agenthook/pkg/task"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

func parseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
	}
}

// resultView is the printed shape of a result.
type resultView struct {
	OperationID         string `json:"operation_id" yaml:"operation_id"`
	AgentID             string `json:"agent_id" yaml:"agent_id"`
	TaskKind            string `json:"task_type,omitempty" yaml:"task_type,omitempty"`
	Status              string `json:"status" yaml:"status"`
	TaskID              string `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	ContextID           string `json:"context_id,omitempty" yaml:"context_id,omitempty"`
	Message             string `json:"message,omitempty" yaml:"message,omitempty"`
	WebhookURL          string `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	Async               bool   `json:"async" yaml:"async"`
	ClarificationRounds int    `json:"clarification_rounds,omitempty" yaml:"clarification_rounds,omitempty"`
	Duration            string `json:"duration" yaml:"duration"`
	Result              any    `json:"result,omitempty" yaml:"result,omitempty"`
}

func newResultView(r *agent.Result) resultView {
	v := resultView{
		OperationID:         r.OperationID,
		AgentID:             r.AgentID,
		Status:              string(r.Status),
		WebhookURL:          r.WebhookURL,
		Async:               r.Async,
		ClarificationRounds: r.ClarificationRounds,
		Duration:            r.Duration.Round(time.Millisecond).String(),
	}
	if p := r.Payload; p != nil {
		v.TaskKind = string(p.TaskKind)
		v.TaskID = p.TaskID
		v.ContextID = p.ContextID
		v.Message = p.Message
		v.Result = decodeResult(p)
	}
	return v
}

func payloadView(p *webhook.CallbackPayload) resultView {
	return resultView{
		OperationID: p.OperationID,
		TaskKind:    string(p.TaskKind),
		Status:      string(p.Status),
		TaskID:      p.TaskID,
		ContextID:   p.ContextID,
		Message:     p.Message,
		Async:       true,
		Result:      decodeResult(p),
	}
}

func decodeResult(p *webhook.CallbackPayload) any {
	if len(p.Result) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(p.Result, &v); err != nil {
		return string(p.Result)
	}
	return v
}

// printResult writes v in the requested format.
func printResult(w io.Writer, format OutputFormat, v resultView) error {
	if format == OutputFormatTable {
		printResultTable(w, v)
		return nil
	}
	return printStructured(w, format, v)
}

// printStructured writes v as indented JSON or YAML.
func printStructured(w io.Writer, format OutputFormat, v any) error {
	if format == OutputFormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResultTable(w io.Writer, v resultView) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("FIELD"),
		text.FgHiCyan.Sprint("VALUE"),
	})

	t.AppendRow(table.Row{"Operation", v.OperationID})
	if v.AgentID != "" {
		t.AppendRow(table.Row{"Agent", v.AgentID})
	}
	if v.TaskKind != "" {
		t.AppendRow(table.Row{"Task", v.TaskKind})
	}
	t.AppendRow(table.Row{"Status", colorStatus(task.Status(v.Status))})
	if v.TaskID != "" {
		t.AppendRow(table.Row{"Task ID", v.TaskID})
	}
	if v.ContextID != "" {
		t.AppendRow(table.Row{"Context ID", v.ContextID})
	}
	if v.Message != "" {
		t.AppendRow(table.Row{"Message", v.Message})
	}
	if v.WebhookURL != "" {
		t.AppendRow(table.Row{"Webhook", v.WebhookURL})
	}
	if v.Duration != "" {
		t.AppendRow(table.Row{"Duration", v.Duration})
	}
	if v.ClarificationRounds > 0 {
		t.AppendRow(table.Row{"Clarifications", v.ClarificationRounds})
	}
	t.Render()

	if v.Result != nil {
		fmt.Fprintln(w, text.FgHiBlue.Sprint("Result:"))
		printValue(w, v.Result)
	}
}

// printValue renders objects as a key/value table and anything else as
// indented JSON.
func printValue(w io.Writer, v any) {
	obj, ok := v.(map[string]any)
	if !ok {
		data, _ := json.MarshalIndent(v, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("KEY"),
		text.FgHiCyan.Sprint("VALUE"),
	})
	for _, k := range keys {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(k), formatCell(obj[k])})
	}
	t.Render()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return text.Faint.Sprint("-")
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return pkgstrings.SingleLine(string(data), pkgstrings.MaxCellLen)
	default:
		return fmt.Sprint(val)
	}
}

func colorStatus(s task.Status) string {
	switch {
	case s.IsSuccess():
		return text.FgGreen.Sprint(string(s))
	case s.IsTerminal():
		return text.FgRed.Sprint(string(s))
	default:
		return text.FgYellow.Sprint(string(s))
	}
}

// parseParams decodes --params, which is a JSON object or @file, and
// applies --set key=value pairs on top. Values given with --set are parsed
// as JSON when possible and kept as strings otherwise.
func parseParams(raw string, sets []string, readFile func(string) ([]byte, error)) (map[string]any, error) {
	params := map[string]any{}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "@") {
		data, err := readFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, fmt.Errorf("failed to read params file: %w", err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, fmt.Errorf("params must be a JSON object: %w", err)
		}
		if params == nil {
			params = map[string]any{}
		}
	}

	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", kv)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		params[strings.TrimSpace(key)] = v
	}
	return params, nil
}
