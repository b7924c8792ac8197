package backup

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3UploaderPutsObjectPathStyle(t *testing.T) {
	var (
		mu      sync.Mutex
		method  string
		urlPath string
		body    []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, urlPath, body = r.Method, r.URL.Path, b
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := NewS3Uploader(context.Background(), S3Config{
		Bucket:    "backups",
		Prefix:    "cardeal/daily",
		Endpoint:  srv.URL,
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "tenant_demo_20250601_030000.db")
	require.NoError(t, os.WriteFile(file, []byte("snapshot"), 0o600))
	require.NoError(t, up.Upload(context.Background(), file))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/backups/cardeal/daily/tenant_demo_20250601_030000.db", urlPath)
	assert.Equal(t, "snapshot", string(body))
}

func TestS3UploaderRequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), S3Config{})
	assert.Error(t, err)
}

func TestS3UploaderMissingFile(t *testing.T) {
	up, err := NewS3Uploader(context.Background(), S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Error(t, up.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.db")))
}
