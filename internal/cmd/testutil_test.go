package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/99designs/keyring"

	"github.com/digitalliving/life-engine-cli/internal/config"
	"github.com/digitalliving/life-engine-cli/internal/iocontext"
)

// cliResult is what one Execute call printed.
type cliResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI executes the CLI with in-memory streams.
func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	streams, out, errOut := iocontext.Test(stdin)
	err := Execute(iocontext.WithIO(context.Background(), streams), args)
	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

// withKeyring gives the test one in-memory keyring that survives across
// Execute calls, and a private credentials directory.
func withKeyring(t *testing.T) keyring.Keyring {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	restore := config.SetOpenKeyring(func(keyring.Config) (keyring.Keyring, error) {
		return ring, nil
	})
	t.Cleanup(restore)
	t.Setenv("LE_CREDENTIALS_DIR", t.TempDir())
	return ring
}

// setupTestEnvWithHandler starts handler and points the LIFEENGINE_*
// variables at it.
func setupTestEnvWithHandler(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("LIFEENGINE_API_URL", server.URL)
	t.Setenv("LIFEENGINE_CLIENT_ID", "cli")
	t.Setenv("LIFEENGINE_TOKEN", "test-token")
	t.Setenv("LE_OUTPUT", "text")
	return server
}

// jsonResponse returns a handler answering with status and body.
func jsonResponse(statusCode int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	}
}

// routeHandler routes requests by exact "METHOD PATH" and records what it
// received. Unknown routes answer 404.
type routeHandler struct {
	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []recordedRequest
}

type recordedRequest struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
	ContentType   string
	Body          string
}

func newRouteHandler() *routeHandler {
	return &routeHandler{routes: map[string]http.HandlerFunc{}}
}

func (h *routeHandler) On(method, path string, handler http.HandlerFunc) *routeHandler {
	h.routes[method+" "+path] = handler
	return h
}

func (h *routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body bytes.Buffer
	_, _ = body.ReadFrom(r.Body)
	h.mu.Lock()
	h.requests = append(h.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.EscapedPath(),
		RawQuery:      r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		Body:          body.String(),
	})
	h.mu.Unlock()
	r.Body = io.NopCloser(bytes.NewReader(body.Bytes()))

	if handler, ok := h.routes[r.Method+" "+r.URL.Path]; ok {
		handler(w, r)
		return
	}
	http.NotFound(w, r)
}

func (h *routeHandler) Requests() []recordedRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recordedRequest(nil), h.requests...)
}
