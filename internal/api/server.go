package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/bootstrap"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/metrics"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/records"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/render"
)

// Server wires HTTP handlers to the resolved capabilities.
type Server struct {
	router   chi.Router
	store    records.Store
	renderer render.Renderer
	report   atomic.Pointer[bootstrap.Report]
	logger   *zap.Logger
	now      func() time.Time
}

// degradedCapability is implemented by stand-ins for missing resources.
type degradedCapability interface {
	Reason() string
}

// readOnlyStore is a degraded store that rejects every write.
type readOnlyStore interface {
	degradedCapability
	Unavailable() error
}

const maxRequestBody = 1 << 20

// NewServer constructs a Server with middleware and routes.
func NewServer(store records.Store, renderer render.Renderer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		renderer: renderer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/snapshots", s.createSnapshot)
		r.Get("/snapshots", s.listSnapshots)
	})

	s.router = r
	return s
}

// SetReport publishes the bootstrap report on /readyz.
func (s *Server) SetReport(report bootstrap.Report) {
	s.report.Store(&report)
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	report := s.report.Load()
	if report == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "bootstrapping"})
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type snapshotRequest struct {
	URL string `json:"url"`
}

func (s *Server) createSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateTarget(req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// No point rendering a page that cannot be saved.
	if ro, ok := s.store.(readOnlyStore); ok {
		s.writeDegraded(w, ro.Unavailable(), ro)
		return
	}

	page, err := s.renderer.Render(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, render.ErrBrowserUnavailable) {
			s.writeDegraded(w, err, s.renderer)
			return
		}
		s.logger.Warn("render failed", zap.String("url", req.URL), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "render failed")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("generate id: %v", err))
		return
	}
	snap := records.Snapshot{
		ID:          id.String(),
		URL:         page.URL,
		FinalURL:    page.FinalURL,
		StatusCode:  page.StatusCode,
		Title:       page.Title,
		ContentHash: page.Digest(),
		Bytes:       len(page.HTML),
		RenderedAt:  s.now(),
	}
	if err := s.store.Save(r.Context(), snap); err != nil {
		if errors.Is(err, records.ErrUnavailable) {
			s.writeDegraded(w, err, s.store)
			return
		}
		s.logger.Error("save snapshot failed", zap.String("id", snap.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	snaps, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list snapshots failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	_, sample := s.store.(degradedCapability)
	if snaps == nil {
		snaps = []records.Snapshot{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps, "sample": sample})
}

func validateTarget(raw string) error {
	if raw == "" {
		return errors.New("url required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("url must be an absolute http or https URL")
	}
	return nil
}

func (s *Server) writeDegraded(w http.ResponseWriter, err error, capability any) {
	body := map[string]any{"error": err.Error(), "degraded": true}
	if d, ok := capability.(degradedCapability); ok {
		body["reason"] = d.Reason()
	}
	s.writeJSON(w, http.StatusServiceUnavailable, body)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.String("request_id", reqID),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
