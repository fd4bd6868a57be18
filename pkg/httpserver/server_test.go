package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/mselser95/polymarket-surveillance/pkg/healthprobe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func probe(t *testing.T, s *Server, path string) (*http.Response, string) {
	t.Helper()

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	resp := w.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(body)
}

func TestNew(t *testing.T) {
	logger := zap.NewNop()
	hc := healthprobe.New()

	server := New(&Config{
		Port:          "8080",
		Logger:        logger,
		HealthChecker: hc,
		Store:         storage.NewMemoryStorage(logger),
		Wallets:       fakeWallets{},
		Prices:        fakePrices{},
	})

	require.NotNil(t, server)
	assert.Equal(t, ":8080", server.server.Addr)
	assert.Same(t, hc, server.healthChecker)
	assert.Equal(t, 15*time.Second, server.server.ReadTimeout)
	assert.Equal(t, 10*time.Second, server.server.ReadHeaderTimeout)
	assert.Equal(t, 15*time.Second, server.server.WriteTimeout)
	assert.Equal(t, 60*time.Second, server.server.IdleTimeout)
}

func TestProbeAndMetricsRoutes(t *testing.T) {
	hc := healthprobe.New()
	var tickErr error
	hc.AddCheck("surveillance-tick", func() error { return tickErr })

	server := New(&Config{Port: "0", Logger: zap.NewNop(), HealthChecker: hc})

	resp, _ := probe(t, server, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = probe(t, server, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "not ready before start-up completes")

	hc.SetReady(true)
	resp, _ = probe(t, server, "/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	tickErr = context.DeadlineExceeded
	resp, body := probe(t, server, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "surveillance-tick")

	resp, body = probe(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
	assert.True(t, strings.Contains(body, "go_goroutines"), "default registry is served")

	resp, _ = probe(t, server, "/api/alerts")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "api routes need a store")
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	handler := requestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for _, path := range []string{"/api/alerts", "/health"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusTeapot, w.Code, path)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := New(&Config{Port: "0", Logger: zap.NewNop(), HealthChecker: healthprobe.New()})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-serverDone:
		assert.NoError(t, err, "Start returns nil after a graceful shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after shutdown")
	}
}
