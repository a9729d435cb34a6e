package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"agenthook/internal/config"
	"agenthook/internal/webhook"
	"agenthook/pkg/logging"
	pkgoauth "agenthook/pkg/oauth"
	"agenthook/pkg/task"
)

// PushNotificationArgument is the tool argument carrying the webhook
// configuration on MCP calls.
const PushNotificationArgument = "push_notification_config"

// ClientVersion is reported to MCP servers during initialization.
var ClientVersion = "dev"

// MCPTransport calls an agent's tools over MCP streamable HTTP. The session
// is opened on first use and reopened when the auth headers change.
type MCPTransport struct {
	cfg        config.AgentConfig
	tokens     TokenProvider
	httpClient *http.Client

	mu      sync.Mutex
	client  *client.Client
	headers map[string]string
}

// NewMCPTransport creates an MCP transport. tokens and httpClient may be nil.
func NewMCPTransport(cfg config.AgentConfig, tokens TokenProvider, httpClient *http.Client) *MCPTransport {
	return &MCPTransport{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// Call invokes the tool named after the task kind.
func (t *MCPTransport) Call(ctx context.Context, req Request) (*webhook.CallbackPayload, error) {
	headers, err := buildHeaders(ctx, t.cfg, t.tokens)
	if err != nil {
		return nil, err
	}

	c, err := t.connect(ctx, headers)
	if err != nil {
		return nil, err
	}

	var call mcp.CallToolRequest
	call.Params.Name = string(req.TaskKind)
	call.Params.Arguments = toolArguments(req)

	logging.Debug(subsystem, "Calling tool %s on agent %s (operation %s)", req.TaskKind, t.cfg.ID, req.OperationID)
	res, err := c.CallTool(ctx, call)
	if err != nil {
		t.reset()
		if pkgoauth.Is401Error(err) {
			return nil, &AuthRequiredError{
				AgentID:   t.cfg.ID,
				Challenge: pkgoauth.ParseWWWAuthenticateFromError(err),
				Err:       err,
			}
		}
		return nil, fmt.Errorf("tool %s on agent %s failed: %w", req.TaskKind, t.cfg.ID, err)
	}
	return toolPayload(res, req), nil
}

// Close ends the MCP session.
func (t *MCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *MCPTransport) connect(ctx context.Context, headers map[string]string) (*client.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil && maps.Equal(t.headers, headers) {
		return t.client, nil
	}
	_ = t.closeLocked()

	var opts []transport.StreamableHTTPCOption
	if len(headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}
	if t.httpClient != nil {
		opts = append(opts, transport.WithHTTPBasicClient(t.httpClient))
	}

	c, err := client.NewStreamableHttpClient(t.cfg.URI, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client for %s: %w", t.cfg.URI, err)
	}

	var initReq mcp.InitializeRequest
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "agenthook",
		Version: ClientVersion,
	}
	result, err := c.Initialize(ctx, initReq)
	if err != nil {
		_ = c.Close()
		if pkgoauth.Is401Error(err) {
			return nil, &AuthRequiredError{
				AgentID:   t.cfg.ID,
				Challenge: pkgoauth.ParseWWWAuthenticateFromError(err),
				Err:       err,
			}
		}
		return nil, fmt.Errorf("failed to initialize MCP session with %s: %w", t.cfg.URI, err)
	}

	logging.Debug(subsystem, "MCP session with %s established (server %s %s)",
		t.cfg.ID, result.ServerInfo.Name, result.ServerInfo.Version)
	t.client = c
	t.headers = headers
	return c, nil
}

func (t *MCPTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.closeLocked()
}

func (t *MCPTransport) closeLocked() error {
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	t.headers = nil
	return err
}

func toolArguments(req Request) map[string]any {
	args := make(map[string]any, len(req.Params)+3)
	maps.Copy(args, req.Params)
	if push := req.pushConfig(); push != nil {
		args[PushNotificationArgument] = push
	}
	if req.ContextID != "" {
		args["context_id"] = req.ContextID
	}
	if req.TaskID != "" {
		args["task_id"] = req.TaskID
	}
	if req.Input != "" {
		args["input"] = req.Input
	}
	return args
}

// toolPayload interprets a tool result. Results that carry a task status
// are parsed like webhook bodies; anything else is a synchronous completion
// whose result is the tool output.
func toolPayload(res *mcp.CallToolResult, req Request) *webhook.CallbackPayload {
	body, text := toolBody(res)

	if res.IsError {
		return &webhook.CallbackPayload{
			OperationID: req.OperationID,
			TaskKind:    req.TaskKind,
			Status:      task.StatusFailed,
			Message:     text,
			Raw:         body,
		}
	}

	if body != nil {
		d, err := webhook.ParseDelivery(body, webhook.ParseOptions{
			OperationID: req.OperationID,
			TaskKind:    req.TaskKind,
		})
		if err == nil && d.Kind == webhook.DeliveryStatusChange && d.Status.Status != task.StatusUnknown {
			return d.Status
		}
		return &webhook.CallbackPayload{
			OperationID: req.OperationID,
			TaskKind:    req.TaskKind,
			Status:      task.StatusCompleted,
			Result:      body,
			Raw:         body,
		}
	}

	raw, _ := json.Marshal(text)
	return &webhook.CallbackPayload{
		OperationID: req.OperationID,
		TaskKind:    req.TaskKind,
		Status:      task.StatusCompleted,
		Result:      raw,
		Message:     text,
	}
}

// toolBody returns the JSON object a tool produced, if any, and its text content.
func toolBody(res *mcp.CallToolResult) ([]byte, string) {
	var texts []string
	for _, content := range res.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, textContent.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if res.StructuredContent != nil {
		if body, err := json.Marshal(res.StructuredContent); err == nil && bytes.HasPrefix(body, []byte("{")) {
			return body, text
		}
	}
	trimmed := bytes.TrimSpace([]byte(text))
	if bytes.HasPrefix(trimmed, []byte("{")) && json.Valid(trimmed) {
		return trimmed, text
	}
	return nil, text
}
