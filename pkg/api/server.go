package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aegisai/aegis/pkg/events"
	"github.com/aegisai/aegis/pkg/log"
	"github.com/aegisai/aegis/pkg/metrics"
	"github.com/aegisai/aegis/pkg/orchestrator"
	"github.com/aegisai/aegis/pkg/swarm"
)

// Server is the HTTP control plane. All mission and swarm operations go
// through the orchestrator and pool; the server itself holds no state
// beyond its start time.
type Server struct {
	orch    *orchestrator.Orchestrator
	pool    *swarm.Swarm
	bus     *events.Bus
	version string

	httpServer *http.Server
	startedAt  time.Time
	logger     zerolog.Logger
}

// NewServer assembles the router and its handlers.
func NewServer(listen string, orch *orchestrator.Orchestrator, pool *swarm.Swarm, bus *events.Bus, version string) *Server {
	s := &Server{
		orch:      orch,
		pool:      pool,
		bus:       bus,
		version:   version,
		startedAt: time.Now(),
		logger:    log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.instrument)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/missions", s.submitMission)
		r.Get("/missions", s.listMissions)
		r.Get("/missions/{missionID}", s.getMission)
		r.Delete("/missions/{missionID}", s.cancelMission)
		r.Get("/swarm", s.getSwarm)
		r.Get("/events", s.streamEvents)
	})
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info().Str("listen", s.httpServer.Addr).Msg("control plane listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests. Event streams end when their
// subscriptions are closed by the bus shutting down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
	})
}
