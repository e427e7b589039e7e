package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFileAndTool(t *testing.T) {
	t.Log("\n🔍 Testing metadata lookups...")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/dashboard/files/12":
			w.Write([]byte(`{"id":12,"filename":"scan.nessus","file_path":"/uploads/scan.nessus","tool_id":3,"status":"pending"}`))
		case "/api/dashboard/tools/3":
			w.Write([]byte(`{"id":3,"name":"Nessus","type":"Vulnerability_Scanner"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second, nil)
	ctx := context.Background()

	file, err := client.GetFile(ctx, 12, "secret")
	require.NoError(t, err)
	assert.Equal(t, "scan.nessus", file.Filename)
	assert.Equal(t, "/uploads/scan.nessus", file.FilePath)
	assert.Equal(t, uint(3), file.ToolID)

	tool, err := client.GetTool(ctx, file.ToolID, "secret")
	require.NoError(t, err)
	desc := tool.Descriptor()
	assert.Equal(t, "Nessus", desc.Name)
	assert.Equal(t, "Vulnerability_Scanner", desc.Type)
	assert.Equal(t, uint(3), desc.ID)

	t.Log("✅ Metadata lookups test passed")
}

func TestNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).GetFile(context.Background(), 1, "")
	var ext *ExternalServiceError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, http.StatusForbidden, ext.StatusCode)
	assert.False(t, ext.Timeout)
	assert.Equal(t, "get_file", ext.Op)
}

func TestTimeout(t *testing.T) {
	t.Log("\n🔍 Testing metadata timeout...")

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond, nil).GetTool(context.Background(), 1, "")
	var ext *ExternalServiceError
	require.True(t, errors.As(err, &ext))
	assert.True(t, ext.Timeout, "error: %v", err)
	assert.Contains(t, err.Error(), "timed out")

	t.Log("✅ Metadata timeout test passed")
}

func TestInvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).GetFile(context.Background(), 1, "")
	var ext *ExternalServiceError
	require.True(t, errors.As(err, &ext))
	assert.Zero(t, ext.StatusCode)
}
