package prometheus

import (
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/metrics"
)

func TestErrnoLabel(t *testing.T) {
	assert.Equal(t, "", errnoLabel(nil))
	assert.Equal(t, "other", errnoLabel(errors.New("boom")))

	err := &fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}
	assert.Equal(t, syscall.ENOENT.Error(), errnoLabel(err))
}

func TestMountMetrics_Exported(t *testing.T) {
	metrics.InitRegistry()

	m := NewMountMetrics()
	m.RecordOperation("open", time.Millisecond, nil)
	m.RecordOperation("open", time.Millisecond, &fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT})
	m.RecordBytes("read", 42)
	m.SetOpenFiles(3)

	// A second instance shares the registered series.
	again := NewMountMetrics()
	again.RecordBytes("read", 8)

	s3m := NewS3Metrics()
	require.NotNil(t, s3m)
	s3m.ObserveOperation("GetObject", time.Millisecond, nil)
	s3m.RecordBytes("read", 10)

	srv := metrics.NewServer(metrics.ServerConfig{Port: 19090})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `stripefs_mount_operations_total{errno="",operation="open",status="success"} 1`)
	assert.Contains(t, body, `stripefs_mount_bytes_total{direction="read"} 50`)
	assert.Contains(t, body, "stripefs_mount_open_files 3")
	assert.True(t, strings.Contains(body, "stripefs_s3_operations_total"))
}
