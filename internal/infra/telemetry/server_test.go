package telemetry

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartHTTPServer_ServesMetrics(t *testing.T) {
	listener := mustListen(t)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)
	metrics.SetQueueDepth(3)

	errChan := make(chan error, 1)
	go func() {
		errChan <- StartHTTPServer(ctx, HTTPServerOptions{
			Addr:     fmt.Sprintf("127.0.0.1:%d", port),
			Registry: registry,
		}, zap.NewNop())
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
	waitForHTTPStatus(t, url, http.StatusOK)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mcpq_queue_depth 3")

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestStartHTTPServer_HealthzFollowsReadiness(t *testing.T) {
	listener := mustListen(t)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ready atomic.Bool
	errChan := make(chan error, 1)
	go func() {
		errChan <- StartHTTPServer(ctx, HTTPServerOptions{
			Addr:     fmt.Sprintf("127.0.0.1:%d", port),
			Registry: prometheus.NewRegistry(),
			Ready:    ready.Load,
		}, zap.NewNop())
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	waitForHTTPStatus(t, url, http.StatusServiceUnavailable)

	ready.Store(true)
	waitForHTTPStatus(t, url, http.StatusOK)

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestStartHTTPServer_PortInUse(t *testing.T) {
	listener := mustListen(t)
	defer listener.Close()
	addr := listener.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := StartHTTPServer(ctx, HTTPServerOptions{Addr: addr}, zap.NewNop())
	require.Error(t, err)
}

func mustListen(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skip test due to listen error: %v", err)
	}
	return listener
}

func waitForHTTPStatus(t *testing.T, url string, status int) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == status
	}, 2*time.Second, 25*time.Millisecond)
}
