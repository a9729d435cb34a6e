package callback

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthook/internal/webhook"
	"agenthook/pkg/task"
)

func TestDispatcher_RoutesToCorrelator(t *testing.T) {
	c := webhook.NewCorrelator(webhook.CorrelatorOptions{Verifier: webhook.NewSignatureVerifier("s3cr3t", "")})
	d := NewDispatcher(Config{Path: "/webhook", ID: "lib"}, c)

	base, err := d.Start(context.Background())
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, base+"/webhook", d.URL())

	opA, err := c.Track("op_a", task.KindCreateMediaBuy, "agent", time.Minute)
	require.NoError(t, err)
	opB, err := c.Track("op_b", task.KindSyncCreatives, "agent", time.Minute)
	require.NoError(t, err)

	send := func(path string, body []byte) int {
		req, err := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(webhook.DefaultSignatureHeader, webhook.Sign(body, "s3cr3t"))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusAccepted, send("/webhook/sync_creatives/op_b", []byte(`{"status":"completed"}`)))
	assert.Equal(t, http.StatusAccepted, send("/webhook/create_media_buy/op_a", []byte(`{"operation_id":"op_a","status":"rejected"}`)))

	pb, err := opB.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, pb.Status)
	assert.Equal(t, task.KindSyncCreatives, pb.TaskKind)

	pa, err := opA.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, task.StatusRejected, pa.Status)

	resp, err := http.Get(base + "/webhook")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
