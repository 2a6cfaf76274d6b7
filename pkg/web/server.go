package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zoe-analytics/zoe/pkg/auth"
	"github.com/zoe-analytics/zoe/pkg/config"
	"github.com/zoe-analytics/zoe/pkg/endpoint"
	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/metrics"
	"github.com/zoe-analytics/zoe/pkg/storage"
)

// Server is the REST front-end. Every data path goes through the API
// endpoint; the web layer only does HTTP plumbing and authentication.
type Server struct {
	endpoint      *endpoint.APIEndpoint
	store         storage.Store
	authenticator auth.Authenticator
	cfg           *config.Config
	logger        zerolog.Logger
	http          *http.Server
}

// NewServer creates the front-end server.
func NewServer(ep *endpoint.APIEndpoint, store storage.Store, authenticator auth.Authenticator, cfg *config.Config) *Server {
	s := &Server{
		endpoint:      ep,
		store:         store,
		authenticator: authenticator,
		cfg:           cfg,
		logger:        log.WithComponent("web"),
	}

	s.http = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort),
		Handler:     s.router(),
		ReadTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.logRequests)

	r.Handle("/metrics", metrics.Handler())
	r.Get("/api/info", s.handleInfo)

	r.Group(func(r chi.Router) {
		r.Use(s.basicAuth)

		r.Get("/api/execution", s.handleExecutionList)
		r.Post("/api/execution", s.handleExecutionStart)
		r.Get("/api/execution/{id}", s.handleExecutionGet)
		r.Delete("/api/execution/{id}", s.handleExecutionTerminate)
		r.Delete("/api/execution/delete/{id}", s.handleExecutionDelete)
		r.Get("/api/service", s.handleServiceList)
		r.Get("/api/service/{id}", s.handleServiceGet)
		r.Get("/api/service/{id}/logs", s.handleServiceLogs)
		r.Get("/api/statistics/scheduler", s.handleSchedulerStats)
	})
	return r
}

// Handler exposes the front-end router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving HTTP in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("listen", s.http.Addr).Msg("web front-end listening")
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("web server failed")
		}
	}()
	return nil
}

// Stop shuts the front-end down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
