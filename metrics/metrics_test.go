package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsEndpoint(t *testing.T) {
	MappingsTotal.WithLabelValues("apply", "success").Inc()
	PassesTotal.WithLabelValues("success").Inc()
	PassDuration.Observe(0.42)

	mux := http.NewServeMux()
	Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	for _, metric := range []string{
		"portmapd_mappings_total",
		"portmapd_passes_total",
		"portmapd_pass_duration_seconds",
	} {
		require.True(t, strings.Contains(string(body), metric), "missing %s", metric)
	}
}
