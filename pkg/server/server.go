// Package server exposes the HTTP ingestion endpoint. Submissions
// must carry a bearer token that passes verification and ACL
// authorization before anything reaches the pipeline; client errors
// get fixed JSON bodies that never leak internal detail.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tinyland-inc/eden/pkg/auth"
	"github.com/tinyland-inc/eden/pkg/bus"
	"github.com/tinyland-inc/eden/pkg/telemetry"
)

// maxBodyBytes bounds an ingestion request body.
const maxBodyBytes = 10 << 20

// Server accepts telemetry over HTTP and produces into the ingest
// bus.
type Server struct {
	addr       string
	ingest     *bus.IngestBus
	router     chi.Router
	httpServer *http.Server
	logger     zerolog.Logger
	running    atomic.Bool
}

func New(addr string, authn *auth.Authenticator, ingest *bus.IngestBus, logger zerolog.Logger) *Server {
	s := &Server{
		addr:   addr,
		ingest: ingest,
		logger: logger.With().Str("component", "http").Logger(),
	}

	r := chi.NewRouter()
	r.Use(accessLog(s.logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Route("/telemetry", func(r chi.Router) {
		r.Use(auth.Middleware(authn, s.logger))
		r.Put("/", s.handleIngest)
		r.Post("/", s.handleIngest)
	})
	s.router = r

	return s
}

// Handler returns the routing tree, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in a background goroutine.
func (s *Server) Start(context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running.Store(true)

	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("http server failed")
		}
		s.running.Store(false)
	}()
	return nil
}

// Stop shuts the listener down, letting in-flight requests finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.running.Store(false)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// handleIngest accepts an array of messages and enqueues one envelope
// per message, all attributed to the request's authenticated agent.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	agent := auth.AgentFromContext(r.Context())
	if agent == nil {
		// Unreachable behind the middleware; kept as a guard for
		// misrouted configurations.
		writeJSON(w, http.StatusUnauthorized, `{"error":"unauthorized"}`)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid body"}`)
		return
	}
	messages, err := telemetry.ParseBatch(body)
	if err != nil {
		s.logger.Info().Err(err).Str("agent", agent.Name).Msg("unparseable request body")
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid body"}`)
		return
	}

	s.logger.Debug().Int("messages", len(messages)).Str("agent", agent.Name).Msg("batch received")

	for _, msg := range messages {
		if err := s.ingest.Publish(r.Context(), bus.Envelope{Agent: agent, Msg: msg}); err != nil {
			s.logger.Warn().Err(err).Msg("enqueue failed")
			writeJSON(w, http.StatusServiceUnavailable, `{"error":"unavailable"}`)
			return
		}
	}

	writeJSON(w, http.StatusOK, `["Done"]`)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// accessLog tags every request with an id and logs method, path,
// status and latency.
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("request_id", uuid.NewString()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
