// Package server exposes the summarization pipeline over HTTP: submit,
// poll, synchronous and streaming variants.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sumveil/sumveil/internal/config"
	"github.com/sumveil/sumveil/internal/job"
	"github.com/sumveil/sumveil/internal/redact"
	"github.com/sumveil/sumveil/internal/store"
	"github.com/sumveil/sumveil/internal/version"
)

// Server routes HTTP requests to the dispatcher and job store.
type Server struct {
	cfg        *config.Config
	dispatcher *job.Dispatcher
	store      store.Store
	mux        *http.ServeMux
	httpServer *http.Server
}

func New(cfg *config.Config, dispatcher *job.Dispatcher, st store.Store) *Server {
	mux := http.NewServeMux()

	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		store:      st,
		mux:        mux,
	}

	mux.HandleFunc("/v1/summaries", s.handleSummaries)
	mux.HandleFunc("/v1/summaries/", s.handleSummaryStatus)
	mux.HandleFunc("/v1/summaries/stream", s.handleSummaryStream)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/version", s.handleVersion)

	return s
}

// Handler returns the route table, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	redact.Logf("sumveil gateway running on %s", addr)

	// WriteTimeout stays zero by default so SSE responses are not cut off.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "sumveil",
		"version": version.Version,
	})
}

// parseBearerToken extracts the token from an Authorization header.
func parseBearerToken(h string) (string, bool) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func parseBoolQuery(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// shutdownTimeout bounds how long Shutdown waits in main.
const ShutdownTimeout = 10 * time.Second
