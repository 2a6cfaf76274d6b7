package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// fakeAPI is a canned Zoe API that records the requests it receives.
func fakeAPI(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			seen = append(seen, req.Method+" "+req.URL.RequestURI())
			user, pass, _ := req.BasicAuth()
			if req.URL.Path != "/api/info" && (user != "alice" || pass != "wonderland") {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"message": "invalid username or password"})
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/api/info", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(&InfoResponse{Version: "1.0.0", DeploymentName: "prod"})
	})
	r.Post("/api/execution", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int{"execution_id": 42})
	})
	r.Get("/api/execution", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode([]*types.Execution{{ID: 42, Name: "myexp"}})
	})
	r.Get("/api/execution/42", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(&types.Execution{ID: 42, Name: "myexp", Status: types.ExecutionRunning})
	})
	r.Delete("/api/execution/42", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Delete("/api/execution/delete/42", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/execution/7", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "not found"})
	})
	r.Get("/api/service", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode([]*types.Service{{ID: 9, ExecutionID: 42, Name: "main"}})
	})
	r.Get("/api/service/9/logs", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("log line\n"))
	})
	r.Get("/api/statistics/scheduler", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(&types.SchedulerStats{QueueLength: 3})
	})

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, &seen
}

func TestClientRoundTrips(t *testing.T) {
	ts, seen := fakeAPI(t)
	c := NewClient(ts.URL, "alice", "wonderland")

	info, err := c.Info()
	require.NoError(t, err)
	assert.Equal(t, "prod", info.DeploymentName)

	id, err := c.ExecutionStart("myexp", json.RawMessage(`{"name": "testapp"}`))
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	executions, err := c.ExecutionList()
	require.NoError(t, err)
	require.Len(t, executions, 1)

	execution, err := c.ExecutionGet(42)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionRunning, execution.Status)

	require.NoError(t, c.ExecutionTerminate(42))
	require.NoError(t, c.ExecutionDelete(42))

	services, err := c.ServiceList(42)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "main", services[0].Name)

	stats, err := c.SchedulerStatistics()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.QueueLength)

	assert.Equal(t, []string{
		"GET /api/info",
		"POST /api/execution",
		"GET /api/execution",
		"GET /api/execution/42",
		"DELETE /api/execution/42",
		"DELETE /api/execution/delete/42",
		"GET /api/service?execution_id=42",
		"GET /api/statistics/scheduler",
	}, *seen)
}

func TestClientAPIError(t *testing.T) {
	ts, _ := fakeAPI(t)
	c := NewClient(ts.URL, "alice", "wonderland")

	_, err := c.ExecutionGet(7)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not found", apiErr.Message)
}

func TestClientBadCredentials(t *testing.T) {
	ts, _ := fakeAPI(t)
	c := NewClient(ts.URL, "alice", "hunter2")

	_, err := c.ExecutionList()
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClientServiceLogs(t *testing.T) {
	ts, _ := fakeAPI(t)
	c := NewClient(ts.URL, "alice", "wonderland")

	body, err := c.ServiceLogs(9, false)
	require.NoError(t, err)
	defer body.Close()

	buf := make([]byte, 64)
	n, _ := body.Read(buf)
	assert.Equal(t, "log line\n", string(buf[:n]))
}
