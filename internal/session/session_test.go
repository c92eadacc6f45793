package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCapabilitiesJSON = `{
	"ocs": {
		"meta": {"status": "ok", "statuscode": 100, "message": "OK"},
		"data": {"capabilities": {"core": {"status": {"version": "10.15.0.2"}}}}
	}
}`

const testUserJSON = `{
	"ocs": {
		"meta": {"status": "ok", "statuscode": 100, "message": "OK"},
		"data": {"id": "alice", "display-name": "Alice"}
	}
}`

const emptyRootMultistatus = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/remote.php/webdav/</d:href>
    <d:propstat>
      <d:prop><d:getetag>"root-etag"</d:getetag><d:resourcetype><d:collection/></d:resourcetype></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

// recordingHandler tracks every request method+path it served.
type recordingHandler struct {
	mu       sync.Mutex
	requests []string
	inner    http.HandlerFunc
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.requests = append(h.requests, r.Method+" "+r.URL.Path)
	h.mu.Unlock()
	h.inner(w, r)
}

func (h *recordingHandler) sawDavRequest() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, req := range h.requests {
		if strings.Contains(req, "remote.php/webdav") {
			return true
		}
	}
	return false
}

func newTestSession(t *testing.T, handler *recordingHandler) *Session {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sourceDir := t.TempDir()
	systemExclude := filepath.Join(t.TempDir(), "sync-exclude.lst")
	require.NoError(t, os.WriteFile(systemExclude, []byte("*.part\n"), 0644))

	opts := &Options{
		SourceDir:      sourceDir,
		TargetURL:      srv.URL,
		User:           "alice",
		Password:       "secret",
		Interactive:    false,
		MaxSyncRetries: DefaultMaxSyncRetries,
	}
	require.NoError(t, opts.Validate())

	s, err := New(opts)
	require.NoError(t, err)
	s.SystemExcludeFile = systemExclude
	return s
}

func TestRun_CapabilitiesFailureStopsBeforeSync(t *testing.T) {
	handler := &recordingHandler{
		inner: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	}

	s := newTestSession(t, handler)
	err := s.Run(context.Background())

	require.ErrorIs(t, err, ErrConnectingToServer)
	assert.False(t, handler.sawDavRequest(), "no sync engine request may happen after a capabilities failure")
}

func TestRun_IdentityFailureIsFatal(t *testing.T) {
	handler := &recordingHandler{
		inner: func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/ocs/v1.php/cloud/capabilities":
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(testCapabilitiesJSON))
			default:
				w.WriteHeader(http.StatusForbidden)
			}
		},
	}

	s := newTestSession(t, handler)
	err := s.Run(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConnectingToServer)
	assert.False(t, handler.sawDavRequest())
}

func TestRun_UploadsNewLocalFile(t *testing.T) {
	var uploadedBody string
	var uploadedPath string
	var mu sync.Mutex

	handler := &recordingHandler{}
	handler.inner = func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ocs/v1.php/cloud/capabilities":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(testCapabilitiesJSON))
		case r.URL.Path == "/ocs/v1.php/cloud/user":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(testUserJSON))
		case r.Method == "PROPFIND":
			w.WriteHeader(207)
			w.Write([]byte(emptyRootMultistatus))
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			uploadedBody = string(body)
			uploadedPath = r.URL.Path
			mu.Unlock()
			w.Header().Set("ETag", `"new-etag"`)
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}

	s := newTestSession(t, handler)
	require.NoError(t, os.WriteFile(
		filepath.Join(s.opts.SourceDir, "report.txt"), []byte("hello"), 0644))

	require.NoError(t, s.Run(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/remote.php/webdav/report.txt", uploadedPath)
	assert.Equal(t, "hello", uploadedBody)
}

func TestRun_UnreadableExcludeListIsFatal(t *testing.T) {
	handler := &recordingHandler{
		inner: func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/ocs/v1.php/cloud/capabilities":
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(testCapabilitiesJSON))
			case "/ocs/v1.php/cloud/user":
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(testUserJSON))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		},
	}

	s := newTestSession(t, handler)
	s.SystemExcludeFile = filepath.Join(t.TempDir(), "missing-exclude.lst")

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exclude list")
}
