package httptransport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func teapot() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestCORSPreflight(t *testing.T) {
	h := CORS("http://localhost:5173")(teapot())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/vitals", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/vitals", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)
}

func TestCORSDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	CORS("")(teapot()).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/vitals", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := Chain(teapot(), RequestLogger(logger), CORS(""))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/vitals", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "request", entry.Message)
	require.Equal(t, http.StatusTeapot, entry.Data["status"])
	require.Equal(t, "/v1/vitals", entry.Data["path"])
	require.Equal(t, "http", entry.Data["component"])
}

func TestNewServerAppliesConfig(t *testing.T) {
	cfg := DefaultServerConfig(":0")
	srv := NewServer(cfg, teapot())
	require.Equal(t, ":0", srv.Addr)
	require.Equal(t, cfg.WriteTimeout, srv.WriteTimeout)
	require.Equal(t, cfg.ReadTimeout, srv.ReadTimeout)
}
