package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthook/internal/config"
	"agenthook/pkg/task"
)

// a2aAgent is a fake A2A endpoint. reply builds the JSON-RPC result from
// the decoded params.
type a2aAgent struct {
	*httptest.Server
	requests []map[string]any
	headers  []http.Header
}

func newA2AAgent(t *testing.T, reply func(params map[string]any) any) *a2aAgent {
	t.Helper()
	a := &a2aAgent{}
	a.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string         `json:"jsonrpc"`
			ID      string         `json:"id"`
			Method  string         `json:"method"`
			Params  map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.requests = append(a.requests, req.Params)
		a.headers = append(a.headers, r.Header.Clone())

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  reply(req.Params),
		})
	}))
	t.Cleanup(a.Close)
	return a
}

func a2aConfig(uri string) config.AgentConfig {
	return config.AgentConfig{ID: "sales", URI: uri, Protocol: config.ProtocolA2A, AuthToken: "tok"}
}

func TestA2ATransport_CompletedTask(t *testing.T) {
	agent := newA2AAgent(t, func(map[string]any) any {
		return map[string]any{
			"kind":      "task",
			"id":        "task-1",
			"contextId": "ctx-1",
			"status":    map[string]any{"state": "completed"},
			"artifacts": []any{map[string]any{"parts": []any{map[string]any{"kind": "data", "data": map[string]any{"ok": true}}}}},
		}
	})

	tr := NewA2ATransport(a2aConfig(agent.URL), nil, nil)
	p, err := tr.Call(context.Background(), Request{
		OperationID: "op-1",
		TaskKind:    task.KindGetProducts,
		Params:      map[string]any{"brief": "coffee"},
	})
	require.NoError(t, err)

	assert.Equal(t, task.StatusCompleted, p.Status)
	assert.Equal(t, "op-1", p.OperationID)
	assert.Equal(t, "task-1", p.TaskID)
	assert.Equal(t, "ctx-1", p.ContextID)
	assert.Contains(t, string(p.Result), `"ok":true`)

	require.Len(t, agent.requests, 1)
	assert.Equal(t, "Bearer tok", agent.headers[0].Get("Authorization"))

	params := agent.requests[0]
	msg := params["message"].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	part := msg["parts"].([]any)[0].(map[string]any)
	assert.Equal(t, "data", part["kind"])
	data := part["data"].(map[string]any)
	assert.Equal(t, "get_products", data["skill"])
	assert.Equal(t, map[string]any{"brief": "coffee"}, data["input"])

	conf := params["configuration"].(map[string]any)
	assert.Equal(t, true, conf["blocking"])
	assert.NotContains(t, conf, "pushNotificationConfig")
}

func TestA2ATransport_SubmittedWithWebhook(t *testing.T) {
	agent := newA2AAgent(t, func(map[string]any) any {
		return map[string]any{"kind": "task", "id": "task-2", "status": map[string]any{"state": "submitted"}}
	})

	tr := NewA2ATransport(a2aConfig(agent.URL), nil, nil)
	p, err := tr.Call(context.Background(), Request{
		OperationID:   "op-2",
		TaskKind:      task.KindCreateMediaBuy,
		WebhookURL:    "https://hooks.example.com/webhook/op-2",
		WebhookSecret: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, task.StatusSubmitted, p.Status)

	conf := agent.requests[0]["configuration"].(map[string]any)
	assert.Equal(t, false, conf["blocking"])
	push := conf["pushNotificationConfig"].(map[string]any)
	assert.Equal(t, "https://hooks.example.com/webhook/op-2", push["url"])
	assert.Equal(t, "op-2", push["token"])
	auth := push["authentication"].(map[string]any)
	assert.Equal(t, []any{SignatureScheme}, auth["schemes"])
	assert.Equal(t, "s3cret", auth["credentials"])

	md := agent.requests[0]["metadata"].(map[string]any)
	assert.Equal(t, "op-2", md["operation_id"])
	assert.Equal(t, "create_media_buy", md["task_type"])
}

func TestA2ATransport_InputContinuation(t *testing.T) {
	agent := newA2AAgent(t, func(map[string]any) any {
		return map[string]any{"kind": "task", "id": "task-3", "status": map[string]any{"state": "working"}}
	})

	tr := NewA2ATransport(a2aConfig(agent.URL), nil, nil)
	_, err := tr.Call(context.Background(), Request{
		OperationID: "op-3",
		TaskKind:    task.KindCreateMediaBuy,
		TaskID:      "task-3",
		ContextID:   "ctx-3",
		Input:       "use the Q3 budget",
	})
	require.NoError(t, err)

	msg := agent.requests[0]["message"].(map[string]any)
	assert.Equal(t, "task-3", msg["taskId"])
	assert.Equal(t, "ctx-3", msg["contextId"])
	part := msg["parts"].([]any)[0].(map[string]any)
	assert.Equal(t, "text", part["kind"])
	assert.Equal(t, "use the Q3 budget", part["text"])
}

func TestA2ATransport_MessageReply(t *testing.T) {
	agent := newA2AAgent(t, func(map[string]any) any {
		return map[string]any{
			"kind":      "message",
			"contextId": "ctx-4",
			"parts": []any{
				map[string]any{"kind": "text", "text": "here you go"},
				map[string]any{"kind": "data", "data": map[string]any{"products": []any{"p1"}}},
			},
		}
	})

	tr := NewA2ATransport(a2aConfig(agent.URL), nil, nil)
	p, err := tr.Call(context.Background(), Request{OperationID: "op-4", TaskKind: task.KindGetProducts})
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, p.Status)
	assert.Equal(t, "here you go", p.Message)
	assert.JSONEq(t, `{"products":["p1"]}`, string(p.Result))
}

func TestA2ATransport_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="https://auth.example.com", scope="tasks"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := NewA2ATransport(config.AgentConfig{ID: "sales", URI: server.URL, Protocol: config.ProtocolA2A}, nil, nil)
	_, err := tr.Call(context.Background(), Request{OperationID: "op-5", TaskKind: task.KindGetProducts})

	var authErr *AuthRequiredError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "sales", authErr.AgentID)
	require.NotNil(t, authErr.Challenge)
	assert.Equal(t, "https://auth.example.com", authErr.Challenge.Realm)
	assert.Equal(t, "tasks", authErr.Challenge.Scope)
}

func TestA2ATransport_Errors(t *testing.T) {
	t.Run("rpc error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32601,"message":"method not found"}}`))
		}))
		defer server.Close()

		tr := NewA2ATransport(config.AgentConfig{ID: "sales", URI: server.URL}, nil, nil)
		_, err := tr.Call(context.Background(), Request{OperationID: "op", TaskKind: task.KindGetProducts})
		var rpcErr *RPCError
		require.True(t, errors.As(err, &rpcErr))
		assert.Equal(t, -32601, rpcErr.Code)
	})

	t.Run("http error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer server.Close()

		tr := NewA2ATransport(config.AgentConfig{ID: "sales", URI: server.URL}, nil, nil)
		_, err := tr.Call(context.Background(), Request{OperationID: "op", TaskKind: task.KindGetProducts})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 502")
		assert.False(t, IsAuthRequired(err))
	})

	t.Run("empty result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":null}`))
		}))
		defer server.Close()

		tr := NewA2ATransport(config.AgentConfig{ID: "sales", URI: server.URL}, nil, nil)
		_, err := tr.Call(context.Background(), Request{OperationID: "op", TaskKind: task.KindGetProducts})
		assert.Error(t, err)
	})
}
