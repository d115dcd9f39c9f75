package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logpipe-io/logpipe/internal/sender"
)

type stubSource struct {
	name string
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Status() sender.Status {
	return sender.Status{Name: s.name, Mode: "synchronous", Sent: 7}
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// TestHealthEndpoints covers the liveness and readiness probes.
func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil)
	require.Equal(t, http.StatusOK, get(t, srv, "/healthz").Code)
	require.Equal(t, http.StatusOK, get(t, srv, "/readyz").Code)
}

// TestSenderStatusEndpoints registers a source and reads it back, then
// verifies unregister removes it.
func TestSenderStatusEndpoints(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil)
	unregister := srv.Register(&stubSource{name: "bulk"})

	rec := get(t, srv, "/v1/senders/bulk")
	require.Equal(t, http.StatusOK, rec.Code)
	var st sender.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, "bulk", st.Name)
	require.EqualValues(t, 7, st.Sent)

	rec = get(t, srv, "/v1/senders/")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []sender.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)

	require.NoError(t, unregister())
	require.Error(t, unregister())
	require.Equal(t, http.StatusNotFound, get(t, srv, "/v1/senders/bulk").Code)
}

// TestMetricsEndpoint serves the Prometheus exposition format.
func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil)
	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}
