package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	meshgw "github.com/snarg/meshgw"
	"github.com/snarg/meshgw/internal/api"
	"github.com/snarg/meshgw/internal/config"
	"github.com/snarg/meshgw/internal/database"
	"github.com/snarg/meshgw/internal/ingest"
	"github.com/snarg/meshgw/internal/live"
	"github.com/snarg/meshgw/internal/maintenance"
	"github.com/snarg/meshgw/internal/mapbuilder"
	"github.com/snarg/meshgw/internal/meshconfig"
	"github.com/snarg/meshgw/internal/metrics"
	"github.com/snarg/meshgw/internal/mqttclient"
	"github.com/snarg/meshgw/internal/radio"
	"github.com/snarg/meshgw/internal/registry"
	"github.com/snarg/meshgw/internal/store"
)

// gatewayStats adapts the registry and live broadcaster to
// metrics.GatewayStats for the prometheus collector.
type gatewayStats struct {
	reg  *registry.Registry
	live *live.Broadcaster
}

func (g gatewayStats) RegistryCacheLen() int    { return g.reg.CacheLen() }
func (g gatewayStats) LiveSubscriberCount() int { return g.live.SubscriberCount() }

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	flag.StringVar(&overrides.MeshConfigFile, "mesh-config", "", "Path to mesh config YAML (overrides MESH_CONFIG_FILE)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("meshgw starting")

	mesh, err := meshconfig.Load(cfg.MeshConfigFile)
	if err != nil {
		log.Fatal().Err(err).Str("mesh_config_file", cfg.MeshConfigFile).Msg("failed to load mesh config")
	}
	mesh.WatchChannelKeys(func(err error) {
		log.Error().Err(err).Msg("mesh config: channel key reload failed")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, meshgw.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("schema initialization failed")
	}

	st := store.New(db, log)
	reg := registry.New(db, log)
	codec := radio.NewCodec(mesh.ChannelKeys().Lookup)
	lv := live.NewBroadcaster()
	builder := mapbuilder.New(st, mesh, log)

	pipeline := ingest.New(codec, reg, st, mesh, lv, log)

	supervisor := mqttclient.NewSupervisor(pipeline.HandleMessage, log.With().Str("component", "mqtt").Logger())
	go supervisor.Run(ctx, mesh.Current().MQTT.Client)

	sched := maintenance.New(st, mesh, builder, lv, log)
	go sched.Run(ctx)

	prometheus.MustRegister(metrics.NewCollector(db.Pool, gatewayStats{reg: reg, live: lv}))

	loc, err := time.LoadLocation(mesh.Current().Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", mesh.Current().Timezone).Msg("unknown display timezone, falling back to UTC")
		loc = time.UTC
	}

	srv := api.NewServer(api.Options{
		Addr:         cfg.HTTPAddr,
		Store:        st,
		Builder:      builder,
		Live:         lv,
		DB:           db,
		Location:     loc,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		Log:          log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().
		Str("listen", cfg.HTTPAddr).
		Str("version", version).
		Dur("startup_ms", time.Since(startTime)).
		Msg("meshgw ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("meshgw stopped")
}
