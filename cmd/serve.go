package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carimages/internal/api"
	"carimages/internal/config"
	fileutil "carimages/internal/file"
	"carimages/internal/metrics"
	runpkg "carimages/internal/run"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service for starting and watching runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), a.cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.OutputDir} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mtr, err := metrics.New(registry)
	if err != nil {
		return err //nolint:wrapcheck
	}

	runManager := buildRunManager(cfg, mtr)
	router := setupRouter()
	wireAPI(router, runManager, mtr)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	runManager.SetBaseContext(baseCtx)

	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info().Int("port", cfg.Port).Str("output_dir", cfg.OutputDir).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info().Msg("shutdown signal received")
		gracefulShutdown(srv, baseCancel, runManager, shutdownTimeout)
		return nil
	})
	return group.Wait() //nolint:wrapcheck
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func buildRunManager(cfg config.Config, mtr *metrics.Metrics) *runpkg.Manager {
	rm := runpkg.NewManager(runpkg.Options{
		DataDir:   cfg.DataDir,
		OutputDir: cfg.OutputDir,
		MinBytes:  cfg.MinBytes,
		Catalogs:  runpkg.DirCatalogs(cfg.CatalogDir, cfg.AllowedExtensions),
		Batch:     runpkg.NewBatch(cfg, mtr),
	})

	if err := rm.LoadFromDisk(); err != nil {
		log.Warn().Err(err).Msg("loading previous runs failed")
	}
	return rm
}

func wireAPI(router *gin.Engine, rm *runpkg.Manager, mtr *metrics.Metrics) {
	apiHandler := api.NewAPI(rm)
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)
	api.RegisterMetrics(router, mtr.Handler())
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// gracefulShutdown stops accepting requests, then cancels the running batch
// (it stops between two images) and waits for it.
func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, rm *runpkg.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if done := rm.WaitAll(ctx); !done {
		log.Warn().Msg("background run did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
