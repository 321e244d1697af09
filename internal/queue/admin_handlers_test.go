package queue_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-bundles/internal/queue"
)

type fakeInspector struct {
	archived []*asynq.TaskInfo
	ran      []string
	runAll   int
}

func (f *fakeInspector) GetQueueInfo(q string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: q, Pending: 3, Archived: len(f.archived), Latency: 2 * time.Second}, nil
}

func (f *fakeInspector) ListArchivedTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.archived, nil
}

func (f *fakeInspector) RunTask(_, id string) error {
	if id == "missing" {
		return errors.New("task not found")
	}
	f.ran = append(f.ran, id)
	return nil
}

func (f *fakeInspector) RunAllArchivedTasks(string) (int, error) {
	f.runAll++
	return len(f.archived), nil
}

func TestArchivedListAndReplay(t *testing.T) {
	insp := &fakeInspector{archived: []*asynq.TaskInfo{{
		ID: "t1", Type: queue.TypeWarmBundle, Payload: []byte(`{"bundleIds":["kit"]}`),
		Retried: 5, MaxRetry: 5, LastErr: "storefront down", LastFailedAt: time.Unix(1700000000, 0),
	}}}
	handler := &queue.AdminHandler{Inspector: insp, PageSize: 10}

	rr := httptest.NewRecorder()
	handler.ListArchived(rr, httptest.NewRequest(http.MethodGet, "/admin/queue/archived?page=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Data []struct {
			ID        string          `json:"id"`
			Payload   json.RawMessage `json:"payload"`
			LastError string          `json:"lastError"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list.Data, 1)
	require.Equal(t, "storefront down", list.Data[0].LastError)
	require.JSONEq(t, `{"bundleIds":["kit"]}`, string(list.Data[0].Payload))

	body, _ := json.Marshal(map[string]any{"ids": []string{"t1", "t1", "missing"}})
	rr = httptest.NewRecorder()
	handler.ReplayArchived(rr, httptest.NewRequest(http.MethodPost, "/admin/queue/replay", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{"t1"}, insp.ran)
	require.Contains(t, rr.Body.String(), "missing")

	rr = httptest.NewRecorder()
	handler.ReplayArchived(rr, httptest.NewRequest(http.MethodPost, "/admin/queue/replay", bytes.NewReader([]byte(`{"all":true}`))))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, insp.runAll)

	rr = httptest.NewRecorder()
	handler.ReplayArchived(rr, httptest.NewRequest(http.MethodPost, "/admin/queue/replay", bytes.NewReader([]byte(`{}`))))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStats(t *testing.T) {
	handler := &queue.AdminHandler{Inspector: &fakeInspector{}}
	rr := httptest.NewRecorder()
	handler.Stats(rr, httptest.NewRequest(http.MethodGet, "/admin/queue/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var stats map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
	require.Equal(t, queue.DefaultQueue, stats["queue"])
	require.EqualValues(t, 3, stats["pending"])
	require.EqualValues(t, 2000, stats["latency_ms"])
}
