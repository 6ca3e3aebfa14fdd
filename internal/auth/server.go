package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	callbackPath = "/callback"
	returnPath   = "/return"

	maxReturnBody = 64 << 10
)

// CallbackServer is a loopback listener that acts as the redirect URI of an
// implicit grant. The relay page at /callback forwards the fragment to
// /return, which hands it to ImplicitFlow.CheckReturn. /return only takes
// same-origin JSON posts. The first return whose state matches a pending
// authorization ends the wait, whether it was resolved or ignored; any other
// request is answered and the server keeps waiting.
type CallbackServer struct {
	flow    *ImplicitFlow
	result  chan ReturnResult
	server  *http.Server
	baseURL string

	once sync.Once
}

// NewCallbackServer returns a server for flow. Call Start before Wait.
func NewCallbackServer(flow *ImplicitFlow) *CallbackServer {
	return &CallbackServer{
		flow:   flow,
		result: make(chan ReturnResult, 1),
	}
}

// Start listens on a random loopback port and returns the redirect URI.
func (s *CallbackServer) Start() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to start server: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	s.baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		_ = s.server.Serve(listener)
	}()

	return s.RedirectURI(), nil
}

// RedirectURI returns the URI the authorization server should redirect to.
func (s *CallbackServer) RedirectURI() string {
	return s.baseURL + callbackPath
}

// Handler returns the server's routes.
func (s *CallbackServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, s.handleCallback)
	mux.HandleFunc(returnPath, s.handleReturn)
	return mux
}

// Wait blocks until a return completes the flow or ctx is done.
func (s *CallbackServer) Wait(ctx context.Context) (ReturnResult, error) {
	select {
	case res := <-s.result:
		return res, nil
	case <-ctx.Done():
		return ReturnResult{}, ctx.Err()
	}
}

// Shutdown stops the listener.
func (s *CallbackServer) Shutdown() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		_ = s.server.Close() // Force close if graceful shutdown fails
	}
}

// Login runs a whole flow: it starts the listener, authenticates with the
// listener as redirect URI and waits for the return.
func (s *CallbackServer) Login(ctx context.Context) (ReturnResult, error) {
	redirectURI, err := s.Start()
	if err != nil {
		return ReturnResult{}, err
	}
	defer s.Shutdown()

	if _, err := s.flow.Authenticate(ctx, redirectURI); err != nil {
		return ReturnResult{}, err
	}
	return s.Wait(ctx)
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	_ = relayTemplate.Execute(w, map[string]string{
		"App":        "the Life Engine CLI",
		"ReturnPath": returnPath,
	})
}

type returnPayload struct {
	Query    string `json:"query"`
	Fragment string `json:"fragment"`
}

func (s *CallbackServer) handleReturn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		http.Error(w, "Unsupported media type", http.StatusUnsupportedMediaType)
		return
	}
	if !s.sameOrigin(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var payload returnPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxReturnBody)).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"resolved": false,
			"title":    "Sign-in failed",
			"message":  "Invalid request body",
		})
		return
	}

	returnURL := s.RedirectURI()
	if q := strings.TrimPrefix(payload.Query, "?"); q != "" {
		returnURL += "?" + q
	}
	if f := strings.TrimPrefix(payload.Fragment, "#"); f != "" {
		returnURL += "#" + f
	}

	res := s.flow.CheckReturn(r.Context(), returnURL)
	if !res.Completed() {
		writeJSON(w, http.StatusOK, map[string]any{
			"resolved": false,
			"title":    "Waiting for sign-in",
			"message":  "This page did not carry an authorization response. Finish signing in from the authorization page.",
		})
		return
	}

	if res.Matched() {
		s.once.Do(func() {
			s.result <- res
		})
	}

	if res.Phase == PhaseResolved {
		writeJSON(w, http.StatusOK, map[string]any{
			"resolved": true,
			"title":    "Signed in",
			"message":  "You can close this window and return to the terminal.",
		})
		return
	}

	msg := "The authorization response was not accepted."
	var perr *ProviderError
	if errors.As(res.Reason, &perr) {
		msg = perr.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resolved": false,
		"title":    "Sign-in failed",
		"message":  msg,
	})
}

// sameOrigin rejects requests a browser marks as coming from another site.
// Non-browser clients send neither header and pass.
func (s *CallbackServer) sameOrigin(r *http.Request) bool {
	switch r.Header.Get("Sec-Fetch-Site") {
	case "", "same-origin", "none":
	default:
		return false
	}
	origin := r.Header.Get("Origin")
	return origin == "" || (s.baseURL != "" && origin == s.baseURL)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
