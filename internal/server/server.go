package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/boardsync/internal/api/v1"
	"github.com/gosuda/boardsync/internal/api/ws"
	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/config"
	"github.com/gosuda/boardsync/internal/server/middleware"
)

// Store is the persistence the server needs. *postgres.Store satisfies it.
type Store interface {
	v1.DataStore
	Ping(ctx context.Context) error
}

// Cache is the optional board cache. *redis.BoardCache satisfies it.
type Cache interface {
	v1.BoardCache
	Ping(ctx context.Context) error
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	store      Store
	cache      Cache // nil when Redis is not configured
	hub        *ws.Hub
	cfg        *config.Config
}

// New creates a Server with all routes wired. cache may be nil.
// ctx bounds the background cleanup of the rate limiters.
func New(ctx context.Context, cfg *config.Config, store Store, cache Cache, authSvc *auth.Service) *Server {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(requestLogger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	hub := ws.NewHub(ws.NewRegistry(cfg.Realtime.MaxTopics))
	authz := auth.NewAuthorizer(store.Projects(), store.Tasks())

	var boardCache v1.BoardCache
	if cache != nil {
		boardCache = cache
	}
	boards := v1.NewBoardSync(store, boardCache, hub)

	s := &Server{
		router: router,
		store:  store,
		cache:  cache,
		hub:    hub,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			// Websocket connections manage their own deadlines; WriteTimeout
			// is applied per route by the API group below.
		},
	}

	router.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated: signup, register, login, refresh.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, 5, 20))

			cfgPublic := huma.DefaultConfig("BoardSync Auth API", "1.0.0")
			cfgPublic.Servers = []*huma.Server{{URL: "/api/v1"}}
			publicAPI := humachi.New(r, cfgPublic)
			registerPublicRoutes(publicAPI, store, authSvc, authz)
		})

		// Authenticated routes (everything else).
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(cfg.Server.WriteTimeout))
			r.Use(middleware.Auth(authSvc))
			r.Use(middleware.RequireCompanyMember())
			r.Use(middleware.ReadOnlyViewers())
			r.Use(middleware.RateLimit(ctx, cfg.Server.RateLimit, cfg.Server.RateBurst))

			apiConfig := huma.DefaultConfig("BoardSync API", "1.0.0")
			apiConfig.Servers = []*huma.Server{{URL: "/api/v1"}}
			// Both groups share one router; only the public API serves docs.
			apiConfig.OpenAPIPath = ""
			apiConfig.DocsPath = ""
			apiConfig.SchemasPath = ""
			api := humachi.New(r, apiConfig)
			registerAPIRoutes(api, store, authz, hub, boards)
		})
	})

	// The websocket endpoint authenticates from the query string because
	// browsers cannot set headers on the upgrade request.
	router.Method(http.MethodGet, "/ws", ws.NewHandler(hub, authSvc, authz, ws.Options{
		QueueSize:      cfg.Realtime.QueueSize,
		PingInterval:   cfg.Realtime.PingInterval,
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		ReadLimit:      cfg.Realtime.ReadLimit,
		InboundRate:    cfg.Realtime.InboundRate,
		InboundBurst:   cfg.Realtime.InboundBurst,
		OriginPatterns: originPatterns(cfg.Server.CORSOrigins),
	}))

	router.Get("/healthz", s.healthz)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub that task mutations publish to.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Topics int               `json:"topics"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	res := healthStatus{Status: "ok", Checks: map[string]string{}, Topics: s.hub.Registry().TopicCount()}
	code := http.StatusOK

	if err := s.store.Ping(ctx); err != nil {
		res.Checks["postgres"] = err.Error()
		res.Status = "unavailable"
		code = http.StatusServiceUnavailable
	} else {
		res.Checks["postgres"] = "ok"
	}

	// The cache is an accelerator; losing it degrades but does not fail.
	switch {
	case s.cache == nil:
		res.Checks["redis"] = "disabled"
	case s.cache.Ping(ctx) != nil:
		res.Checks["redis"] = "unreachable"
		if res.Status == "ok" {
			res.Status = "degraded"
		}
	default:
		res.Checks["redis"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(res)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server. Hijacked websocket connections
// are not tracked by http.Server, so they are closed through the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	s.hub.CloseAll()
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("http request")
	})
}
