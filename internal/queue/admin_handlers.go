package queue

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-bundles/internal/common"
)

type inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	RunTask(queue, id string) error
	RunAllArchivedTasks(queue string) (int, error)
}

// AdminHandler exposes queue management endpoints for archived tasks and
// metrics.
type AdminHandler struct {
	Inspector inspector
	Queue     string
	PageSize  int
	Logger    zerolog.Logger
}

type archivedItem struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Retried      int             `json:"retried"`
	MaxRetry     int             `json:"maxRetry"`
	LastError    string          `json:"lastError,omitempty"`
	LastFailedAt *time.Time      `json:"lastFailedAt,omitempty"`
}

type replayRequest struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

func (h *AdminHandler) queue() string {
	if h.Queue == "" {
		return DefaultQueue
	}
	return h.Queue
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return 50
	}
	return h.PageSize
}

// ListArchived returns tasks that exhausted their retries, paginated.
func (h *AdminHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeUnknownError, "queue inspector unavailable", nil)
		return
	}
	page, perPage := common.ParsePagination(r, h.pageSize())
	tasks, err := h.Inspector.ListArchivedTasks(h.queue(), asynq.Page(page), asynq.PageSize(perPage))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeUnknownError, err.Error(), nil)
		return
	}
	items := make([]archivedItem, 0, len(tasks))
	for _, t := range tasks {
		item := archivedItem{
			ID:        t.ID,
			Type:      t.Type,
			Payload:   json.RawMessage(t.Payload),
			Retried:   t.Retried,
			MaxRetry:  t.MaxRetry,
			LastError: t.LastErr,
		}
		if !json.Valid(t.Payload) {
			item.Payload = nil
		}
		if !t.LastFailedAt.IsZero() {
			ts := t.LastFailedAt
			item.LastFailedAt = &ts
		}
		items = append(items, item)
	}
	resp := map[string]any{
		"data":       items,
		"queue":      h.queue(),
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: len(items)},
	}
	common.JSON(w, http.StatusOK, resp)
}

// ReplayArchived re-runs archived tasks either by id list or all at once.
func (h *AdminHandler) ReplayArchived(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeUnknownError, "queue inspector unavailable", nil)
		return
	}
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	ids := uniqueStrings(req.IDs)
	if len(ids) == 0 && !req.All {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "ids or all required", nil)
		return
	}

	if req.All {
		n, err := h.Inspector.RunAllArchivedTasks(h.queue())
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, common.CodeUnknownError, err.Error(), nil)
			return
		}
		h.Logger.Info().Int("count", n).Str("queue", h.queue()).Msg("queue_archived_replayed")
		common.JSON(w, http.StatusOK, map[string]any{"replayed": n})
		return
	}

	replayed := make([]string, 0, len(ids))
	failed := make(map[string]string)
	for _, id := range ids {
		if err := h.Inspector.RunTask(h.queue(), id); err != nil {
			failed[id] = err.Error()
			continue
		}
		replayed = append(replayed, id)
	}
	resp := map[string]any{"replayed": replayed}
	if len(failed) > 0 {
		resp["failed"] = failed
	}
	common.JSON(w, http.StatusOK, resp)
}

// Stats returns queue sizes and refreshes the depth gauges.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeUnknownError, "queue inspector unavailable", nil)
		return
	}
	info, err := h.Inspector.GetQueueInfo(h.queue())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeUnknownError, err.Error(), nil)
		return
	}
	QueueDepth.WithLabelValues(info.Queue).Set(float64(info.Pending))
	QueueArchivedSize.WithLabelValues(info.Queue).Set(float64(info.Archived))
	common.JSON(w, http.StatusOK, map[string]any{
		"queue":      info.Queue,
		"pending":    info.Pending,
		"active":     info.Active,
		"scheduled":  info.Scheduled,
		"retry":      info.Retry,
		"archived":   info.Archived,
		"latency_ms": info.Latency.Milliseconds(),
		"paused":     info.Paused,
	})
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
