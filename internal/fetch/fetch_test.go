package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subflow/internal/engine"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestFetcher(t *testing.T, maxRetries int) *Fetcher {
	return New(Options{
		Timeout:    time.Second,
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		TempDir:    t.TempDir(),
	})
}

func TestFetch_ExtractsNestedWorkflow(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"pkg/workflow.yaml":        "name: remote\nsteps:\n  - id: a\n    tool: echo\n",
		"pkg/data/readme.txt":      "hello",
		"pkg/nested/workflow.yaml": "name: nested\nsteps: []\n",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)
	dir, root, err := f.Fetch(context.Background(), srv.URL+"/wf.zip")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "pkg"), dir)
	data, err := os.ReadFile(filepath.Join(dir, engine.DefinitionFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: remote")
	assert.FileExists(t, filepath.Join(dir, "data", "readme.txt"))
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	archive := buildArchive(t, map[string]string{"workflow.yaml": "name: x\n"})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(archive)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 3)
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 2)
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_PermanentFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		permission bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, permission: true},
		{name: "forbidden", status: http.StatusForbidden, permission: true},
		{name: "not found", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			f := newTestFetcher(t, 3)
			_, _, err := f.Fetch(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, tt.permission, errors.Is(err, ErrPermissionDenied))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestFetch_RejectsPathTraversal(t *testing.T) {
	archive := buildArchive(t, map[string]string{"../evil/workflow.yaml": "name: x\n"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	f := New(Options{TempDir: tempDir})
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	// nothing is left behind
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetch_ArchiveWithoutDefinition(t *testing.T) {
	archive := buildArchive(t, map[string]string{"readme.txt": "nothing here"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)
	_, _, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, engine.ErrNoDefinition)
}

func TestFetch_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := New(Options{Timeout: 20 * time.Millisecond, MaxRetries: 1, BaseDelay: time.Millisecond, TempDir: t.TempDir()})
	start := time.Now()
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCleanArchivePath(t *testing.T) {
	valid, err := cleanArchivePath("a/./b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("a", "b", "c.txt"), valid)

	for _, p := range []string{"", "/etc/passwd", "..", "../x", "a/../../x", "."} {
		_, err := cleanArchivePath(p)
		assert.Error(t, err, p)
	}
}
