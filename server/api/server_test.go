package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ciphernode/delegation-relayer/server/api/middleware"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := zerolog.New(io.Discard).Level(zerolog.Disabled)
	s := NewServer(DefaultConfig(), log)
	s.Use(middleware.RequestID())
	s.Use(middleware.Logger(log))
	s.Use(middleware.Recover(log))
	return s
}

func (s *Server) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthzTagsRequestID(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.RegisterOps(prometheus.NewRegistry())

	rr := s.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"ok"`)
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRequestIDHonorsCallerSupplied(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.RegisterOps(prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-chosen")
	rr := s.serve(req)
	require.Equal(t, "caller-chosen", rr.Header().Get("X-Request-ID"))
}

func TestMetricsExposition(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_test_total"})
	reg.MustRegister(c)
	c.Inc()

	s := newTestServer(t)
	s.RegisterOps(reg)

	rr := s.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "relay_test_total 1")
}

func TestRecoverTurnsPanicInto500(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.Router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}).Methods(http.MethodGet)

	rr := s.serve(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
