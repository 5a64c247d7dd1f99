package uploadhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mwantia/fluxupload/pkg/log"
	"github.com/mwantia/fluxupload/pkg/upload"
)

// multipartMemory is the part of a multipart body kept in memory before spilling to disk
const multipartMemory = 8 << 20

// HealthChecker reports whether a dependency is usable
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Config struct {
	Prefix         string
	MaxRequestSize int64
	// Middleware wraps only the upload routes, e.g. authentication
	Middleware []func(http.Handler) http.Handler
}

type Server struct {
	cfg     Config
	manager *upload.Manager
	health  HealthChecker
	log     log.LoggerService
	started time.Time
}

func NewServer(cfg Config, manager *upload.Manager, health HealthChecker, logger log.LoggerService) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{
		cfg:     cfg,
		manager: manager,
		health:  health,
		log:     logger,
		started: time.Now(),
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.getHealth)

	routes := func(ur chi.Router) {
		ur.Use(s.cfg.Middleware...)
		ur.Post("/init", s.postInit)
		ur.Post("/chunk", s.postChunk)
		ur.Get("/status/{sessionId}", s.getStatus)
		ur.Post("/admin/clean", s.postClean)
	}

	if s.cfg.Prefix == "" || s.cfg.Prefix == "/" {
		r.Group(routes)
	} else {
		r.Route(s.cfg.Prefix, routes)
	}
	return r
}
