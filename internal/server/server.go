// Package server exposes the tool surface over HTTP. Each operation is
// a POST endpoint under /trellis.v1/; responses use a uniform envelope
// so callers can branch on success without sniffing status codes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/tools"
)

const maxBodyBytes = 10 * 1024 * 1024

// Response is the wire envelope for every operation.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody carries the machine-readable failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server serves the tool operations over HTTP.
type Server struct {
	runtime    *tools.Runtime
	httpServer *http.Server
	listener   net.Listener
	addr       string
	log        *zap.Logger
	started    time.Time
}

// New creates a Server around a runtime.
func New(runtime *tools.Runtime, addr string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{runtime: runtime, addr: addr, log: log}
}

// Start listens and serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.started = time.Now()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Post("/trellis.v1/{operation}", s.handleOperation)

	s.httpServer = &http.Server{
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, err, "listen on %s failed", s.addr)
	}
	s.listener = listener
	s.log.Info("listening", zap.String("addr", listener.Addr().String()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once Start has listened.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.runtime.Children.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"cache": map[string]any{
			"entries":   stats.Entries,
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
		},
		"operations": tools.Operations,
	})
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "operation")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeFailure(w, op, errs.New(errs.CodeInvalidField, "request body could not be read"))
		return
	}

	result, err := s.runtime.Dispatch(op, body)
	if err != nil {
		s.writeFailure(w, op, err)
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		s.writeFailure(w, op, errs.Wrap(errs.CodeInternal, err, "response could not be encoded"))
		return
	}
	writeJSONRaw(w, http.StatusOK, Response{Success: true, Data: data})
}

func (s *Server) writeFailure(w http.ResponseWriter, op string, err error) {
	code := errs.CodeOf(err)
	s.log.Warn("operation failed",
		zap.String("operation", op),
		zap.String("code", string(code)),
		zap.Error(err))
	writeJSONRaw(w, statusFor(code), Response{
		Success: false,
		Error:   &ErrorBody{Code: string(code), Message: err.Error()},
	})
}

// statusFor maps failure codes onto HTTP statuses. Validation failures
// are client errors; everything else is the server's problem.
func statusFor(code errs.Code) int {
	switch code {
	case errs.CodeMissingRequiredField, errs.CodeInvalidField,
		errs.CodeParentInvalid, errs.CodeInvalidStatusTransition,
		errs.CodePrerequisitesIncomplete, errs.CodeCircularDependency,
		errs.CodeProtectedObject:
		return http.StatusBadRequest
	case errs.CodeParentNotExist, errs.CodeNoAvailableTask:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONRaw(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
