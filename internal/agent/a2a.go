package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"agenthook/internal/config"
	"agenthook/internal/webhook"
	"agenthook/pkg/logging"
	pkgoauth "agenthook/pkg/oauth"
	pkgstrings "agenthook/pkg/strings"
	"agenthook/pkg/task"
)

// MethodSendMessage is the A2A JSON-RPC method used for every call.
const MethodSendMessage = "message/send"

// A2ATransport sends tasks to an agent as A2A JSON-RPC messages.
type A2ATransport struct {
	cfg        config.AgentConfig
	tokens     TokenProvider
	httpClient *http.Client
}

// NewA2ATransport creates an A2A transport. tokens and httpClient may be nil.
func NewA2ATransport(cfg config.AgentConfig, tokens TokenProvider, httpClient *http.Client) *A2ATransport {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = config.DefaultAgentTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &A2ATransport{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: httpClient,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

type a2aPart struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
	Data any    `json:"data,omitempty"`
}

type a2aMessage struct {
	Kind      string    `json:"kind"`
	MessageID string    `json:"messageId"`
	Role      string    `json:"role"`
	Parts     []a2aPart `json:"parts"`
	TaskID    string    `json:"taskId,omitempty"`
	ContextID string    `json:"contextId,omitempty"`
}

type a2aConfiguration struct {
	Blocking               bool                    `json:"blocking"`
	PushNotificationConfig *pushNotificationConfig `json:"pushNotificationConfig,omitempty"`
}

type a2aSendParams struct {
	Message       a2aMessage        `json:"message"`
	Configuration *a2aConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Call sends a message/send request. Without a webhook URL the agent is
// asked to block until the task finishes.
func (t *A2ATransport) Call(ctx context.Context, req Request) (*webhook.CallbackPayload, error) {
	headers, err := buildHeaders(ctx, t.cfg, t.tokens)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  MethodSendMessage,
		Params:  sendParams(req),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message for agent %s: %w", t.cfg.ID, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URI, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	logging.Debug(subsystem, "Sending %s to agent %s (operation %s)", req.TaskKind, t.cfg.ID, req.OperationID)
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to agent %s failed: %w", t.cfg.ID, err)
	}
	defer resp.Body.Close()

	if challenge := pkgoauth.ParseWWWAuthenticateFromResponse(resp); challenge != nil {
		return nil, &AuthRequiredError{
			AgentID:   t.cfg.ID,
			Challenge: challenge,
			Err:       fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, webhook.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from agent %s: %w", t.cfg.ID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agent %s returned HTTP %d: %s", t.cfg.ID, resp.StatusCode, pkgstrings.SingleLine(string(respBody), pkgstrings.MaxBodyExcerptLen))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC response from agent %s: %w", t.cfg.ID, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("agent %s: %w", t.cfg.ID, rpcResp.Error)
	}
	return sendResult(rpcResp.Result, req)
}

// Close is a no-op; A2A calls are independent HTTP requests.
func (t *A2ATransport) Close() error {
	return nil
}

func sendParams(req Request) a2aSendParams {
	msg := a2aMessage{
		Kind:      "message",
		MessageID: uuid.NewString(),
		Role:      "user",
		TaskID:    req.TaskID,
		ContextID: req.ContextID,
	}
	if req.Input != "" {
		msg.Parts = append(msg.Parts, a2aPart{Kind: "text", Text: req.Input})
	} else {
		params := req.Params
		if params == nil {
			params = map[string]any{}
		}
		msg.Parts = append(msg.Parts, a2aPart{
			Kind: "data",
			Data: map[string]any{"skill": string(req.TaskKind), "input": params},
		})
	}

	push := req.pushConfig()
	return a2aSendParams{
		Message: msg,
		Configuration: &a2aConfiguration{
			Blocking:               push == nil,
			PushNotificationConfig: push,
		},
		Metadata: map[string]string{
			"operation_id": req.OperationID,
			"task_type":    string(req.TaskKind),
		},
	}
}

// sendResult interprets a message/send result, which is either a task or a
// direct message reply.
func sendResult(raw json.RawMessage, req Request) (*webhook.CallbackPayload, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("empty result for operation %s", req.OperationID)
	}

	var head struct {
		Kind      string `json:"kind"`
		ContextID string `json:"contextId"`
		Parts     []struct {
			Kind string          `json:"kind"`
			Text string          `json:"text"`
			Data json.RawMessage `json:"data"`
		} `json:"parts"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("invalid result for operation %s: %w", req.OperationID, err)
	}

	if head.Kind == "message" {
		p := &webhook.CallbackPayload{
			OperationID: req.OperationID,
			ContextID:   head.ContextID,
			TaskKind:    req.TaskKind,
			Status:      task.StatusCompleted,
			Raw:         raw,
		}
		var texts []string
		for _, part := range head.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
			if p.Result == nil && len(part.Data) > 0 {
				p.Result = part.Data
			}
		}
		p.Message = strings.Join(texts, "\n")
		return p, nil
	}

	d, err := webhook.ParseDelivery(raw, webhook.ParseOptions{
		OperationID: req.OperationID,
		TaskKind:    req.TaskKind,
	})
	if err != nil {
		return nil, err
	}
	if d.Kind != webhook.DeliveryStatusChange {
		return nil, fmt.Errorf("unexpected %s result for operation %s", d.Kind, req.OperationID)
	}
	return d.Status, nil
}
