// Package server exposes recovery controllers over HTTP so a dashboard can
// render their state and issue manual retries and resets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/RealSaake/SkillBridge-sub000/internal/probe"
	"github.com/RealSaake/SkillBridge-sub000/internal/recovery"
)

// Operations is the set of runners the server reports on.
type Operations interface {
	List() []*probe.Runner
	Get(key string) (*probe.Runner, bool)
}

// Options configures the HTTP API.
type Options struct {
	CORSOrigins []string
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
}

// Server is the recovery HTTP API.
type Server struct {
	ops    Operations
	router chi.Router
}

// OperationView is the JSON shape of one operation.
type OperationView struct {
	recovery.Snapshot
	Message string            `json:"message,omitempty"`
	Actions []recovery.Action `json:"actions"`
}

// New builds the router.
func New(ops Operations, opts Options) *Server {
	s := &Server{ops: ops, router: chi.NewRouter()}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	s.router.Use(requestLogger)

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/operations", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/retry", s.handleRetry)
		r.Post("/{id}/reset", s.handleReset)
	})
	if opts.Metrics != nil {
		s.router.Handle("/metrics", opts.Metrics)
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"operations": len(s.ops.List()),
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	runners := s.ops.List()
	views := make([]OperationView, 0, len(runners))
	for _, r := range runners {
		views = append(views, view(r.Controller()))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view(ctrl))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.command(w, ctrl, ctrl.RetryNow())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.command(w, ctrl, ctrl.Reset())
}

func (s *Server) command(w http.ResponseWriter, ctrl *recovery.Controller, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, view(ctrl))
	case errors.Is(err, recovery.ErrDisposed):
		writeError(w, http.StatusGone, err)
	case errors.Is(err, recovery.ErrRetryBudgetExhausted), errors.Is(err, recovery.ErrNothingToRetry):
		writeJSON(w, http.StatusConflict, struct {
			Error string `json:"error"`
			OperationView
		}{Error: err.Error(), OperationView: view(ctrl)})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*recovery.Controller, bool) {
	id := chi.URLParam(r, "id")
	runner, ok := s.ops.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, eris.Errorf("operation %q not found", id))
		return nil, false
	}
	return runner.Controller(), true
}

func view(ctrl *recovery.Controller) OperationView {
	snap := ctrl.Snapshot()
	v := OperationView{
		Snapshot: snap,
		Actions:  recovery.DeriveActions(snap, ctrl.Config().EscapeTarget),
	}
	if snap.Failure != nil {
		v.Message = recovery.Message(snap)
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
