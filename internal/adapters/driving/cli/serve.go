package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	configfile "github.com/tenderline-labs/tenderline/internal/adapters/driven/config/file"
	"github.com/tenderline-labs/tenderline/internal/adapters/driven/scoring"
	"github.com/tenderline-labs/tenderline/internal/adapters/driven/storage/sqlite"
	"github.com/tenderline-labs/tenderline/internal/adapters/driving/rest"
	"github.com/tenderline-labs/tenderline/internal/cache"
	"github.com/tenderline-labs/tenderline/internal/connectors/httpjson"
	"github.com/tenderline-labs/tenderline/internal/connectors/samgov"
	"github.com/tenderline-labs/tenderline/internal/core/services"
	"github.com/tenderline-labs/tenderline/internal/logger"
	"github.com/tenderline-labs/tenderline/internal/ratelimit"
)

const shutdownGrace = 30 * time.Second

var (
	serveListen    string
	serveConfigDir string
	serveDataDir   string
	serveCatalogue string
	serveWatch     bool
	serveMaxPolls  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion engine",
	Long: `Starts the poll orchestrator, the processing pipeline, and the
admin API, then runs until interrupted. Sources are loaded from the
store and, if a catalogue file is given, seeded from it.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Admin API listen address (default 127.0.0.1:8714)")
	serveCmd.Flags().StringVar(&serveConfigDir, "config-dir", "", "Configuration directory (default ~/.tenderline)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Data directory (default ~/.tenderline/data)")
	serveCmd.Flags().StringVar(&serveCatalogue, "catalogue", "", "Path to a sources.yaml catalogue")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Watch the catalogue file and apply edits live")
	serveCmd.Flags().IntVar(&serveMaxPolls, "max-polls", 0, "Maximum concurrent polls (default 4)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	configStore, err := configfile.NewConfigStore(serveConfigDir)
	if err != nil {
		return fmt.Errorf("opening config store: %w", err)
	}

	settings := resolveEngineSettings(configStore, serveListen, serveMaxPolls, serveCatalogue)

	store, err := sqlite.NewStore(serveDataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Core services.
	limiter := ratelimit.NewAdaptiveLimiter(ratelimit.Tuning{})
	registry := services.NewSourceRegistry(store.SourceConfigStore(), limiter)
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("loading sources: %w", err)
	}

	bus := services.NewEventBus(64)
	defer bus.Close()

	promRegistry := prometheus.NewRegistry()
	metrics := services.NewMetrics(promRegistry)

	pipeline := services.NewPipeline(services.PipelineConfig{},
		store.RecordStore(), scoring.NewHeuristicScorer(), cache.NewManager(cache.Config{}), bus, metrics)
	pipeline.OnRecordOutcome(registry.RecordOutcome)

	adapters := services.NewAdapterRegistry()
	adapters.Register(samgov.New())
	adapters.Register(httpjson.New())

	ingestor := services.NewIngestor(registry, adapters, services.NewFetcher(nil), pipeline, bus, metrics, settings.maxPolls)
	admin := services.NewAdminService(registry, ingestor)

	// Seed from the catalogue before polling starts.
	var catWatcher *configfile.Catalogue
	if settings.catalogue != "" {
		catWatcher = configfile.NewCatalogue(settings.catalogue, admin)
		if err := catWatcher.Sync(ctx); err != nil {
			return fmt.Errorf("loading catalogue: %w", err)
		}
		if serveWatch {
			if err := catWatcher.Watch(ctx); err != nil {
				return fmt.Errorf("watching catalogue: %w", err)
			}
			defer catWatcher.Stop()
		}
	}

	go logEvents(bus.Subscribe())

	pipeline.Start(ctx)
	if err := ingestor.Start(ctx); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}

	server := rest.NewServer(admin, ingestor, pipeline, promRegistry)
	if err := server.Start(settings.listen); err != nil {
		return err
	}
	logger.Info("admin API listening on %s", server.Addr())
	cmd.Printf("tenderline engine running on %s\n", server.Addr())

	// Run until interrupted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received %s, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	g, gctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error { return server.Shutdown(gctx) })
	g.Go(func() error { return ingestor.Stop(gctx) })
	if err := g.Wait(); err != nil {
		logger.Warn("shutdown: %v", err)
	}

	dropped := pipeline.Stop()
	if dropped > 0 {
		logger.Info("dropped %d queued jobs on shutdown", dropped)
	}
	return nil
}
