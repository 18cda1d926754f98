package panel

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nomis52/archivepanel/metrics"
)

func newTestScrapeRegistry(t *testing.T) *metrics.ScrapeRegistry {
	t.Helper()
	reg, err := metrics.NewScrapeRegistry(metrics.WithoutRuntimeCollectors())
	require.NoError(t, err)
	return reg
}

func scrape(t *testing.T, reg *metrics.ScrapeRegistry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
