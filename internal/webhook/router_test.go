package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthook/internal/events"
	"agenthook/pkg/task"
)

func statusDelivery(kind task.Kind, status task.Status, result string) Delivery {
	p := &CallbackPayload{OperationID: "op_1", TaskKind: kind, Status: status}
	if result != "" {
		p.Result = []byte(result)
	}
	return Delivery{Kind: DeliveryStatusChange, Status: p}
}

func TestRouter_DispatchByKind(t *testing.T) {
	r := NewRouter(nil)

	var got []task.Kind
	r.Register(task.KindCreateMediaBuy, HandlerFunc(func(ctx context.Context, p *CallbackPayload) error {
		got = append(got, p.TaskKind)
		return nil
	}))
	r.SetFallback(HandlerFunc(func(ctx context.Context, p *CallbackPayload) error {
		got = append(got, "fallback:"+p.TaskKind)
		return nil
	}))

	require.NoError(t, r.Dispatch(context.Background(), statusDelivery(task.KindCreateMediaBuy, task.StatusCompleted, "")))
	require.NoError(t, r.Dispatch(context.Background(), statusDelivery(task.KindGetProducts, task.StatusCompleted, "")))

	assert.Equal(t, []task.Kind{task.KindCreateMediaBuy, "fallback:get_products"}, got)
	assert.ElementsMatch(t, []task.Kind{task.KindCreateMediaBuy}, r.Kinds())
}

func TestRouter_RegisterFuncDecodesResult(t *testing.T) {
	type mediaBuy struct {
		MediaBuyID string `json:"media_buy_id"`
	}

	r := NewRouter(nil)
	var ids []string
	RegisterFunc(r, task.KindCreateMediaBuy, func(ctx context.Context, p *CallbackPayload, mb mediaBuy) error {
		ids = append(ids, mb.MediaBuyID)
		return nil
	})

	require.NoError(t, r.Dispatch(context.Background(), statusDelivery(task.KindCreateMediaBuy, task.StatusCompleted, `{"media_buy_id":"mb_9"}`)))
	require.NoError(t, r.Dispatch(context.Background(), statusDelivery(task.KindCreateMediaBuy, task.StatusFailed, "")))
	assert.Equal(t, []string{"mb_9", ""}, ids)

	err := r.Dispatch(context.Background(), statusDelivery(task.KindCreateMediaBuy, task.StatusCompleted, `"not an object"`))
	var herr *HandlerError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "create_media_buy", herr.TaskKind)
}

func TestRouter_ContainsHandlerFailures(t *testing.T) {
	rec := &events.Recorder{}
	r := NewRouter(events.NewEmitter(rec))

	boom := errors.New("boom")
	r.Register(task.KindCreateMediaBuy, HandlerFunc(func(ctx context.Context, p *CallbackPayload) error {
		return boom
	}))
	r.Register(task.KindSyncCreatives, HandlerFunc(func(ctx context.Context, p *CallbackPayload) error {
		panic("handler exploded")
	}))

	err := r.Dispatch(context.Background(), statusDelivery(task.KindCreateMediaBuy, task.StatusCompleted, ""))
	var herr *HandlerError
	require.True(t, errors.As(err, &herr))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "op_1", herr.OperationID)

	require.NotPanics(t, func() {
		err = r.Dispatch(context.Background(), statusDelivery(task.KindSyncCreatives, task.StatusCompleted, ""))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler exploded")

	assert.Equal(t, []events.EventReason{events.ReasonHandlerFailed, events.ReasonHandlerFailed}, rec.Reasons())
}

func TestRouter_Notifications(t *testing.T) {
	r := NewRouter(nil)
	n := &NotificationPayload{OperationID: "op_r", TaskKind: task.KindGetMediaBuyDelivery, NotificationType: NotificationFinal, SequenceNumber: 4}
	d := Delivery{Kind: DeliveryNotification, Notification: n}

	t.Run("no handler drops quietly", func(t *testing.T) {
		assert.NoError(t, r.Dispatch(context.Background(), d))
	})

	t.Run("handler receives notification", func(t *testing.T) {
		var seen []int
		r.SetNotificationHandler(func(ctx context.Context, n *NotificationPayload) error {
			seen = append(seen, n.SequenceNumber)
			return nil
		})
		require.NoError(t, r.Dispatch(context.Background(), d))
		assert.Equal(t, []int{4}, seen)
	})
}

func TestRouter_NilIsNoop(t *testing.T) {
	var r *Router
	assert.NoError(t, r.Dispatch(context.Background(), statusDelivery(task.KindGetProducts, task.StatusCompleted, "")))
}
