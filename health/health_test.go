package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestEndpoints(t *testing.T) {
	SetReady(false)
	t.Cleanup(func() { SetReady(false) })

	mux := http.NewServeMux()
	Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	require.Equal(t, http.StatusOK, get(t, srv.URL+"/healthz"))
	require.Equal(t, http.StatusServiceUnavailable, get(t, srv.URL+"/readyz"))

	SetReady(true)
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/readyz"))
}
