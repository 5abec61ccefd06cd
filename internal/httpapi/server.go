// Package httpapi exposes the query service over HTTP.
package httpapi

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/docpipe/docpipe/internal/errors"
	"github.com/docpipe/docpipe/internal/query"
)

//go:embed static
var staticFiles embed.FS

// searchRequest is the POST /search body.
type searchRequest struct {
	Query string `json:"query"`
}

// searchResponse is the POST /search reply.
type searchResponse struct {
	Results []query.Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// healthResponse is the GET /healthz reply.
type healthResponse struct {
	Status    string `json:"status"`
	Documents uint64 `json:"documents"`
	Backlog   int    `json:"backlog"`
}

// BacklogFunc reports the pipeline's queue depth for health output.
type BacklogFunc func() int

// Server serves the search UI and API.
type Server struct {
	svc     *query.Service
	backlog BacklogFunc
	logger  *slog.Logger
	http    *http.Server
}

// New creates a Server listening on addr.
func New(addr string, svc *query.Service, backlog BacklogFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, backlog: backlog, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	static, _ := fs.Sub(staticFiles, "static")
	mux.Handle("GET /", http.FileServer(http.FS(static)))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_listening", slog.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be JSON with a query field"})
		return
	}

	results, err := s.svc.Search(r.Context(), req.Query)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("search_failed",
				slog.String("query", req.Query),
				slog.String("error", err.Error()))
		}
		writeJSON(w, status, errorResponse{Error: publicMessage(err, status)})
		return
	}

	if results == nil {
		results = []query.Result{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.backlog != nil {
		resp.Backlog = s.backlog()
	}

	count, err := s.svc.Count()
	if err != nil {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Documents = count
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps the query error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch errors.QueryKindOf(err) {
	case errors.QueryInvalidInput:
		return http.StatusBadRequest
	case errors.QueryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps internal details out of 5xx responses.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
