// Package queue carries background cache-warming jobs over asynq.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-bundles/internal/common"
)

// TypeWarmBundle re-resolves bundle definitions into the shared cache.
const TypeWarmBundle = "bundle:warm"

// DefaultQueue is the asynq queue bundle jobs run on.
const DefaultQueue = "bundles"

// WarmPayload is the body of a bundle:warm task.
type WarmPayload struct {
	ShopDomain string   `json:"shopDomain"`
	BundleIDs  []string `json:"bundleIds"`
}

// NewWarmTask encodes p. Ids are trimmed, deduplicated and sorted so equal
// requests share a task id.
func NewWarmTask(p WarmPayload) (*asynq.Task, string, error) {
	p.ShopDomain = strings.ToLower(strings.TrimSpace(p.ShopDomain))
	p.BundleIDs = normalizeIDs(p.BundleIDs)
	if p.ShopDomain == "" || len(p.BundleIDs) == 0 {
		return nil, "", common.NewError(common.CodeBadRequest, "shop domain and bundle ids are required", nil)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, "", fmt.Errorf("encode warm payload: %w", err)
	}
	id := TypeWarmBundle + ":" + common.Digest(p.ShopDomain, strings.Join(p.BundleIDs, ","))
	return asynq.NewTask(TypeWarmBundle, raw), id, nil
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes bundle jobs. A warm request identical to one still
// pending is dropped.
type Enqueuer struct {
	Client      taskClient
	Queue       string
	MaxAttempts int
	Timeout     time.Duration
	// Retention keeps completed task ids around to dedupe bursts.
	Retention time.Duration
}

// EnqueueWarm schedules a warm of ids for shop and returns the task id.
func (e Enqueuer) EnqueueWarm(ctx context.Context, shop string, ids []string) (string, error) {
	if e.Client == nil {
		return "", errors.New("queue: asynq client not configured")
	}
	task, id, err := NewWarmTask(WarmPayload{ShopDomain: shop, BundleIDs: ids})
	if err != nil {
		return "", err
	}
	opts := []asynq.Option{
		asynq.TaskID(id),
		asynq.Queue(e.queue()),
		asynq.MaxRetry(e.maxAttempts()),
	}
	if e.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.Timeout))
	}
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			QueueEnqueuedTotal.WithLabelValues(TypeWarmBundle, "duplicate").Inc()
			return id, nil
		}
		QueueEnqueuedTotal.WithLabelValues(TypeWarmBundle, "error").Inc()
		return "", fmt.Errorf("enqueue %s: %w", TypeWarmBundle, err)
	}
	QueueEnqueuedTotal.WithLabelValues(TypeWarmBundle, "ok").Inc()
	return id, nil
}

func (e Enqueuer) queue() string {
	if e.Queue == "" {
		return DefaultQueue
	}
	return e.Queue
}

func (e Enqueuer) maxAttempts() int {
	if e.MaxAttempts <= 0 {
		return 5
	}
	return e.MaxAttempts
}
