package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopMountMetrics(t *testing.T) {
	m := NewNoopMountMetrics()
	assert.NotPanics(t, func() {
		m.RecordOperation("open", time.Second, errors.New("boom"))
		m.RecordBytes("write", 10)
		m.SetOpenFiles(1)
	})
}

func TestServerConfigDefaults(t *testing.T) {
	srv := NewServer(ServerConfig{})
	assert.Equal(t, 9090, srv.Port())
	assert.NotNil(t, srv.Handler())
}

func TestServer_Endpoints(t *testing.T) {
	srv := NewServer(ServerConfig{Port: 9191})

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/metrics", http.StatusServiceUnavailable, "disabled"},
		{"/", http.StatusOK, ":9191/metrics"},
		{"/other", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) (int, net.Listener) {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	return l.Addr().(*net.TCPAddr).Port, l
}

func TestServer_StartReportsBusyPort(t *testing.T) {
	port, l := freePort(t)
	defer l.Close()

	srv := NewServer(ServerConfig{Port: port})
	err := srv.Start(context.Background())
	assert.Error(t, err)
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	port, l := freePort(t)
	require.NoError(t, l.Close())

	srv := NewServer(ServerConfig{Port: port})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	// Later stops are no-ops.
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv := NewServer(ServerConfig{})
	assert.NoError(t, srv.Stop(context.Background()))
}
