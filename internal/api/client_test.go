package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalliving/life-engine-cli/internal/auth"
)

type recordedRequest struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
	ContentType   string
	Body          string
}

type testBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	hits     atomic.Int32
}

func (b *testBackend) last(t *testing.T) recordedRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.requests, "no request reached the server")
	return b.requests[len(b.requests)-1]
}

// newTestClient starts a server that records each request and then delegates
// to respond.
func newTestClient(t *testing.T, respond http.HandlerFunc) (*Client, *testBackend) {
	t.Helper()
	backend := &testBackend{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backend.hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		backend.mu.Lock()
		backend.requests = append(backend.requests, recordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			RawQuery:      r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			Body:          string(body),
		})
		backend.mu.Unlock()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if respond != nil {
			respond(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{APIURL: srv.URL + "/", ClientID: "abc"})
	require.NoError(t, err)
	return c, backend
}

func resource(t *testing.T, c *Client, name string) *Resource {
	t.Helper()
	r, err := c.Resource(name)
	require.NoError(t, err)
	return r
}

func TestNew_ConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty url", Config{ClientID: "abc"}},
		{"no scheme", Config{APIURL: "api.example.com", ClientID: "abc"}},
		{"ftp scheme", Config{APIURL: "ftp://api.example.com", ClientID: "abc"}},
		{"empty client", Config{APIURL: "https://api.example.com"}},
		{"blank client", Config{APIURL: "https://api.example.com", ClientID: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			assert.Nil(t, c)
			assert.True(t, IsConfigurationError(err), "got %v", err)
		})
	}

	c, err := New(Config{APIURL: " https://api.example.com/ ", ClientID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", c.Config().APIURL)
}

func TestSetConfig_KeepsPreviousOnError(t *testing.T) {
	c, err := New(Config{APIURL: "https://api.example.com", ClientID: "abc"})
	require.NoError(t, err)

	err = c.SetConfig(Config{APIURL: "nope", ClientID: "abc"})
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, "https://api.example.com", c.Config().APIURL)

	require.NoError(t, c.SetConfig(Config{APIURL: "https://other.example.com", ClientID: "xyz"}))
	assert.Equal(t, "https://other.example.com", c.Config().APIURL)
	assert.Equal(t, "xyz", c.Config().ClientID)
}

func TestResource_PostUsesOverride(t *testing.T) {
	c, backend := newTestClient(t, nil)

	resp, err := resource(t, c, "calendar").Post(context.Background(), NewArgs("title", "Dentist", "start", "2026-03-01 09:00"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, map[string]any{"ok": true}, resp.Data)

	req := backend.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/tasks", req.Path)
	assert.Equal(t, "application/x-www-form-urlencoded; charset=UTF-8", req.ContentType)
	assert.Equal(t, "title=Dentist&start=2026-03-01+09%3A00", req.Body)
}

func TestResource_GetSubstitutesAndQueries(t *testing.T) {
	c, backend := newTestClient(t, nil)

	_, err := resource(t, c, "calendar").Get(context.Background(), NewArgs("DLId", 42, "expand", "all"))
	require.NoError(t, err)

	req := backend.last(t)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/tasks/42", req.Path)
	assert.Equal(t, "DLId=42&expand=all", req.RawQuery)
	assert.Empty(t, req.Body)
}

func TestResource_HTTPErrorCarriesData(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})

	resp, err := resource(t, c, "me").Get(context.Background(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, map[string]any{"error": "not found"}, resp.Data)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, map[string]any{"error": "not found"}, httpErr.Data)
	assert.Contains(t, httpErr.Error(), "not found")
	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsTransportError(err))
}

func TestResource_EmptyBody(t *testing.T) {
	for _, body := range []string{"", "  \n"} {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(body))
		})

		resp, err := resource(t, c, "messages").Delete(context.Background(), NewArgs("DLId", 1))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Nil(t, resp.Data)
	}
}

func TestResource_EmptyErrorBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	resp, err := resource(t, c, "me").Get(context.Background(), nil)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Nil(t, resp.Data)
	assert.Equal(t, 500, resp.Status)
	assert.True(t, IsServerError(err))
	assert.Contains(t, err.Error(), "Internal Server Error")
}

func TestResource_MalformedJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	})

	resp, err := resource(t, c, "me").Get(context.Background(), nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, http.StatusOK, transportErr.Status)
	require.NotNil(t, resp)
	assert.Nil(t, resp.Data)
	assert.Equal(t, "<html>oops</html>", string(resp.Body))
}

func TestResource_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := New(Config{APIURL: addr, ClientID: "abc"})
	require.NoError(t, err)

	resp, err := resource(t, c, "me").Get(context.Background(), nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 0, transportErr.Status)
	require.NotNil(t, resp)
	assert.Equal(t, 0, resp.Status)
	assert.Nil(t, resp.Data)
	assert.Equal(t, 0, StatusOf(err))
}

func TestResource_FileOnGetFailsBeforeIO(t *testing.T) {
	c, backend := newTestClient(t, nil)

	resp, err := resource(t, c, "files").Call(context.Background(), http.MethodGet, NewArgs("DLId", 1),
		WithFile(&File{Name: "a.txt", Reader: strings.NewReader("x")}))
	assert.Nil(t, resp)
	assert.True(t, IsInvalidUsage(err), "got %v", err)
	assert.Equal(t, int32(0), backend.hits.Load())
}

func TestResource_MissingArgumentFailsBeforeIO(t *testing.T) {
	c, backend := newTestClient(t, nil)

	resp, err := resource(t, c, "calendar").Get(context.Background(), NewArgs("title", "x"))
	assert.Nil(t, resp)
	var missing *MissingArgumentError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"DLId"}, missing.Missing)
	assert.Contains(t, missing.URL, "/tasks/{DLId}")
	assert.Equal(t, int32(0), backend.hits.Load())
}

func TestResource_UnsupportedVerb(t *testing.T) {
	c, backend := newTestClient(t, nil)

	_, err := resource(t, c, "me").Call(context.Background(), "PATCH", nil)
	assert.True(t, IsInvalidUsage(err))
	assert.Equal(t, int32(0), backend.hits.Load())
}

func TestClient_TokenReadAtCallTime(t *testing.T) {
	c, backend := newTestClient(t, nil)
	me := resource(t, c, "me")
	ctx := context.Background()

	_, err := me.Get(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, backend.last(t).Authorization)

	c.Auth().SetToken("abc")
	_, err = me.Get(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", backend.last(t).Authorization)

	c.Auth().SetToken("")
	_, err = me.Get(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, backend.last(t).Authorization)
}

func TestClient_SharedAuthState(t *testing.T) {
	state := auth.NewState()
	c, err := New(Config{APIURL: "https://api.example.com", ClientID: "abc"}, WithAuthState(state))
	require.NoError(t, err)
	assert.Same(t, state, c.Auth())
}

func TestClient_UploadReportsProgress(t *testing.T) {
	var gotName, gotContent, gotDLId string
	c, backend := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotDLId = r.FormValue("DLId")
		f, hdr, err := r.FormFile(UploadField)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotContent = hdr.Filename, string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"file-1"}`))
	})

	content := strings.Repeat("0123456789", 10_000)
	var events []Progress
	resp, err := c.Upload(context.Background(), &File{Name: "notes.txt", Reader: strings.NewReader(content)},
		NewArgs("DLId", "77"), func(p Progress) { events = append(events, p) })
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, map[string]any{"id": "file-1"}, resp.Data)

	assert.Equal(t, "/entities/77/upload", backend.last(t).Path)
	assert.True(t, strings.HasPrefix(backend.last(t).ContentType, "multipart/form-data; boundary="))
	assert.Equal(t, "77", gotDLId)
	assert.Equal(t, "notes.txt", gotName)
	assert.Equal(t, content, gotContent)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, last.Total, last.Loaded)
	assert.Greater(t, last.Total, int64(len(content)))
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Loaded, events[i-1].Loaded)
	}
}

func TestClient_GoDeliversResult(t *testing.T) {
	c, _ := newTestClient(t, nil)
	me := resource(t, c, "me")

	var chans []<-chan Result
	for i := 0; i < 5; i++ {
		ch, err := me.Go(context.Background(), http.MethodGet, NewArgs("n", i))
		require.NoError(t, err)
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		res := <-ch
		require.NoError(t, res.Err)
		assert.Equal(t, http.StatusOK, res.Response.Status)
		_, open := <-ch
		assert.False(t, open)
	}
}

func TestClient_GoReturnsUsageErrorsSynchronously(t *testing.T) {
	c, backend := newTestClient(t, nil)

	ch, err := resource(t, c, "entity").Go(context.Background(), http.MethodGet, nil)
	assert.Nil(t, ch)
	assert.True(t, IsMissingArgument(err))
	assert.Equal(t, int32(0), backend.hits.Load())
}

func TestClient_GoDeliversHTTPError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
	})

	ch, err := resource(t, c, "me").Go(context.Background(), http.MethodGet, nil)
	require.NoError(t, err)
	res := <-ch
	assert.True(t, IsAuthError(res.Err))
	assert.Equal(t, http.StatusUnauthorized, res.Response.Status)
	assert.Contains(t, res.Err.Error(), "token expired")
}

func TestClient_ContextCanceled(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := resource(t, c, "me").Get(ctx, nil)
	assert.True(t, IsTransportError(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, resp.Status)
}

func TestClient_RateLimitHeaders(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "99")
		_, _ = w.Write([]byte(`{}`))
	})

	resp, err := resource(t, c, "me").Get(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, resp.RateLimit)
	assert.Equal(t, map[string]any{"limit": 100, "remaining": 99}, resp.RateLimit.Meta())
}

func TestResource_URL(t *testing.T) {
	c, err := New(Config{APIURL: "https://api.example.com", ClientID: "abc"})
	require.NoError(t, err)

	u, err := resource(t, c, "taskComments").URL("delete", NewArgs("DLId", 1, "commentId", 2))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/tasks/1/comment/2", u)
}

func TestClient_ImplicitFlowTargetsBackend(t *testing.T) {
	c, err := New(Config{APIURL: "https://api.example.com", ClientID: "abc"})
	require.NoError(t, err)

	flow, err := c.ImplicitFlow("", nil, nil)
	require.NoError(t, err)
	u := flow.AuthorizationURL("http://127.0.0.1:9999/callback", "n1")
	assert.True(t, strings.HasPrefix(u, "https://api.example.com/auth/authorize?"), u)
	assert.Contains(t, u, "response_type=token")
	assert.Contains(t, u, "client_id=abc")

	res := flow.CheckReturn(context.Background(), "https://app.example.com/")
	assert.False(t, res.Completed())
	assert.False(t, c.Auth().Authenticated())
}
