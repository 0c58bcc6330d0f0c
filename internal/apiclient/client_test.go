package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"organiflow/api/internal/hierarchy"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New("localhost:8787", 0)
	require.Error(t, err)
}

func TestListEmployees(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/employees", r.URL.Path)
		require.NotEmpty(t, r.Header.Get(requestIDHeader))
		_, _ = w.Write([]byte(`[{"id":1,"name":"John Smith","title":"CEO","manager_id":null},{"id":2,"name":"Sarah Johnson","title":"CTO","manager_id":1}]`))
	})

	records, err := c.ListEmployees(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 2)
	require.Nil(t, records[0].ManagerID)
	require.Equal(t, int64(1), *records[1].ManagerID)
}

func TestListEmployees_Envelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"employees":[{"id":7,"name":"Ana","title":"Lead","manager_id":null}]}`))
	})

	records, err := c.ListEmployees(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, int64(7), records[0].ID)
}

func TestListEmployees_Malformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"nope"`))
	})

	_, err := c.ListEmployees(context.Background())
	require.ErrorContains(t, err, "decode records")
}

func TestSetManager_SendsPayload(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/update-employee-manager", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":4}`))
	})

	require.NoError(t, c.SetManager(context.Background(), 4, hierarchy.ID(3)))
	require.Equal(t, float64(4), got["id"])
	require.Equal(t, float64(3), got["new_manager_id"])

	require.NoError(t, c.SetManager(context.Background(), 4, nil))
	require.Nil(t, got["new_manager_id"])
}

func TestSetManager_SurfacesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"INVALID_MOVE","error":"An employee cannot report to someone in their own team."}`))
	})

	err := c.SetManager(context.Background(), 1, hierarchy.ID(4))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Equal(t, "INVALID_MOVE", apiErr.Code)
}

func TestReposition_PlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/employees/reposition", r.URL.Path)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})

	err := c.Reposition(context.Background(), []hierarchy.Employee{{ID: 1}})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "upstream unavailable", apiErr.Message)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/search", r.URL.Path)
		require.Equal(t, "sarah", r.URL.Query().Get("q"))
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"results":[{"id":2,"name":"Sarah Johnson","title":"CTO","manager_id":1}],"total":1,"query":"sarah","backend":"postgres"}`))
	})

	resp, err := c.Search(context.Background(), "sarah", 5)
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	require.Equal(t, "Sarah Johnson", resp.Results[0].Name)
}

func TestContextCancellation(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ListEmployees(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExportChart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/export", r.URL.Path)
		require.Equal(t, "html", r.URL.Query().Get("format"))
		require.Equal(t, "Acme", r.URL.Query().Get("title"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Acme</h1>"))
	})

	chart, err := c.ExportChart(context.Background(), "html", "Acme")
	require.NoError(t, err)
	require.Equal(t, "<h1>Acme</h1>", string(chart.Data))
	require.Contains(t, chart.ContentType, "text/html")
}

func TestExportChart_Unavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
		_, _ = w.Write([]byte(`{"code":"EXPORT_UNAVAILABLE","error":"PDF export is not available on this server"}`))
	})

	_, err := c.ExportChart(context.Background(), "pdf", "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "EXPORT_UNAVAILABLE", apiErr.Code)
}
