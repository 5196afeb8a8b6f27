package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/database"
	"github.com/snarg/meshgw/internal/live"
	"github.com/snarg/meshgw/internal/mapbuilder"
	"github.com/snarg/meshgw/internal/metrics"
	"github.com/snarg/meshgw/internal/store"
)

// Server wires the read API's chi router and http.Server.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// Geocoder annotates a position with a human-readable place name. A lookup
// miss returns ("", nil); transport failures are logged by the caller and
// the annotation is omitted either way.
type Geocoder interface {
	Lookup(ctx context.Context, lat, lon float64) (string, error)
}

// Options bundles Server's dependencies.
type Options struct {
	Addr         string
	Store        *store.Store
	Builder      *mapbuilder.Builder
	Live         *live.Broadcaster
	DB           *database.DB
	Geocoder     Geocoder       // nil disables place annotation
	Location     *time.Location // display timezone; nil means UTC
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Log          zerolog.Logger
}

// NewServer builds the chi router and an *http.Server bound to opts.Addr.
func NewServer(opts Options) *Server {
	log := opts.Log.With().Str("component", "api").Logger()

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer)
	r.Use(metrics.InstrumentHandler)

	nodesHandler := &nodesHandler{store: opts.Store, geo: opts.Geocoder, loc: loc, log: log}
	mapHandler := &mapHandler{builder: opts.Builder, log: log}
	healthHandler := &healthHandler{db: opts.DB}

	r.Get("/nodes/{id}", nodesHandler.getNode)
	r.Get("/nodes/{id}/position", nodesHandler.getPositions)
	r.Get("/nodes/{id}/telemetry", nodesHandler.getTelemetry)
	r.Get("/map", mapHandler.getMap)
	r.Get("/map/live", live.Handler(opts.Live, log))
	r.Get("/healthz", healthHandler.getHealth)
	r.Handle("/metrics", promhttp.Handler())

	readTimeout := opts.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		log: log,
	}
}

// ListenAndServe runs the HTTP server until it errors or is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("api: listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
