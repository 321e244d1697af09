package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Warmer refreshes cached definitions for the given bundles.
type Warmer interface {
	Warm(ctx context.Context, ids []string) error
}

// WarmHandler processes bundle:warm tasks for one store.
type WarmHandler struct {
	ShopDomain string
	Warmer     Warmer
	Logger     zerolog.Logger
}

// ProcessTask implements asynq.Handler. Malformed or foreign-store payloads
// are not retried.
func (h WarmHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p WarmPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		QueueProcessedTotal.WithLabelValues(t.Type(), "invalid").Inc()
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if h.ShopDomain != "" && !strings.EqualFold(p.ShopDomain, h.ShopDomain) {
		QueueProcessedTotal.WithLabelValues(t.Type(), "invalid").Inc()
		return fmt.Errorf("task for %q routed to %q: %w", p.ShopDomain, h.ShopDomain, asynq.SkipRetry)
	}
	if err := h.Warmer.Warm(ctx, p.BundleIDs); err != nil {
		QueueProcessedTotal.WithLabelValues(t.Type(), "error").Inc()
		h.Logger.Warn().Err(err).Strs("bundle_ids", p.BundleIDs).Msg("bundle_warm_failed")
		return err
	}
	QueueProcessedTotal.WithLabelValues(t.Type(), "ok").Inc()
	h.Logger.Info().Strs("bundle_ids", p.BundleIDs).Msg("bundle_warm_done")
	return nil
}

// NewServeMux routes bundle task types to their handlers.
func NewServeMux(warm WarmHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeWarmBundle, warm)
	return mux
}
