package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/woozymasta/routesync/internal/config"
	"github.com/woozymasta/routesync/internal/logger"
	"github.com/woozymasta/routesync/internal/mapview"
	"github.com/woozymasta/routesync/internal/optimize"
	"github.com/woozymasta/routesync/internal/overlay"
	"github.com/woozymasta/routesync/internal/server"
	"github.com/woozymasta/routesync/internal/stops"
	"github.com/woozymasta/routesync/internal/stream"
	"github.com/woozymasta/routesync/internal/surface"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"   env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"     env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"     env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	Upstream   string `short:"u" long:"upstream" env:"UPSTREAM_URL"   description:"Route backend base URL, overrides the config file"`
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	mem := surface.NewMemory()
	view := mapview.New(mem, mapview.Options{
		StreamURL: cfg.StreamURL(),
		Stream:    stream.Options{RetryDelay: cfg.RetryDelay},
		Overlay:   overlay.Options{Palette: cfg.Palette, OptimizedColor: cfg.OptimizedColor},
		Optimizer: optimize.NewClient(cfg.OptimizeURL(), cfg.RequestTimeout),
		OnStops: func(st stops.State) {
			log.Debug().
				Int("stops", len(st.Stops)).
				Bool("loading", st.Loading).
				Str("error", st.Error).
				Bool("has_result", st.Result != nil).
				Msg("Stop state changed")
		},
	})

	srvCtx, err := server.NewServerContext(view, mem)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build status page")
	}

	view.Start()
	mem.Load()

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.RequestLogger(srvCtx.Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().
		Str("addr", listenAddr).
		Str("stream", cfg.StreamURL()).
		Str("optimize", cfg.OptimizeURL()).
		Dur("retry_delay", cfg.RetryDelay).
		Msg("Web server started")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		view.Close()
		log.Fatal().Err(err).Msg("Server failed")
	}

	view.Close()
}

// loadConfig reads the config file; a missing file is tolerated when the
// upstream is given on the command line.
func loadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Read(opts.ConfigFile)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && opts.Upstream != "":
		log.Debug().Str("path", opts.ConfigFile).Msg("Config file not found, using defaults")
		cfg = &config.Config{}
	default:
		return nil, err
	}

	if opts.Upstream != "" {
		cfg.Upstream = opts.Upstream
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
