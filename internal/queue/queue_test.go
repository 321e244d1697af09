package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-bundles/internal/queue"
)

type fakeClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type fakeWarmer struct {
	ids [][]string
	err error
}

func (f *fakeWarmer) Warm(_ context.Context, ids []string) error {
	f.ids = append(f.ids, ids)
	return f.err
}

func TestNewWarmTaskNormalizesIDs(t *testing.T) {
	task, id, err := queue.NewWarmTask(queue.WarmPayload{ShopDomain: " Demo.myshopify.com ", BundleIDs: []string{"b", " a", "b", ""}})
	require.NoError(t, err)
	require.Equal(t, queue.TypeWarmBundle, task.Type())

	var p queue.WarmPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	require.Equal(t, "demo.myshopify.com", p.ShopDomain)
	require.Equal(t, []string{"a", "b"}, p.BundleIDs)

	_, same, err := queue.NewWarmTask(queue.WarmPayload{ShopDomain: "demo.myshopify.com", BundleIDs: []string{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, id, same)

	_, _, err = queue.NewWarmTask(queue.WarmPayload{ShopDomain: "demo.myshopify.com"})
	require.Error(t, err)
}

func TestEnqueueWarm(t *testing.T) {
	client := &fakeClient{}
	enq := queue.Enqueuer{Client: client}

	id, err := enq.EnqueueWarm(context.Background(), "demo.myshopify.com", []string{"kit"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, client.tasks, 1)
	require.NotEmpty(t, client.opts[0])
}

func TestEnqueueWarmTreatsConflictAsDuplicate(t *testing.T) {
	enq := queue.Enqueuer{Client: &fakeClient{err: asynq.ErrTaskIDConflict}}
	id, err := enq.EnqueueWarm(context.Background(), "demo.myshopify.com", []string{"kit"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	enq = queue.Enqueuer{Client: &fakeClient{err: errors.New("redis down")}}
	_, err = enq.EnqueueWarm(context.Background(), "demo.myshopify.com", []string{"kit"})
	require.Error(t, err)

	_, err = queue.Enqueuer{}.EnqueueWarm(context.Background(), "demo.myshopify.com", []string{"kit"})
	require.Error(t, err)
}

func TestWarmHandler(t *testing.T) {
	warmer := &fakeWarmer{}
	h := queue.WarmHandler{ShopDomain: "demo.myshopify.com", Warmer: warmer, Logger: zerolog.Nop()}

	task, _, err := queue.NewWarmTask(queue.WarmPayload{ShopDomain: "demo.myshopify.com", BundleIDs: []string{"kit"}})
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Equal(t, [][]string{{"kit"}}, warmer.ids)

	warmer.err = errors.New("storefront down")
	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestWarmHandlerSkipsRetryForBadPayloads(t *testing.T) {
	h := queue.WarmHandler{ShopDomain: "demo.myshopify.com", Warmer: &fakeWarmer{}, Logger: zerolog.Nop()}

	err := h.ProcessTask(context.Background(), asynq.NewTask(queue.TypeWarmBundle, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	other, _, err := queue.NewWarmTask(queue.WarmPayload{ShopDomain: "other.myshopify.com", BundleIDs: []string{"kit"}})
	require.NoError(t, err)
	require.ErrorIs(t, h.ProcessTask(context.Background(), other), asynq.SkipRetry)
}
