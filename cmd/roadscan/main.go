package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goodroad-data/roadscan/internal/api"
	"github.com/goodroad-data/roadscan/internal/cache"
	"github.com/goodroad-data/roadscan/internal/config"
	"github.com/goodroad-data/roadscan/internal/geoquery"
	"github.com/goodroad-data/roadscan/internal/ingest"
	"github.com/goodroad-data/roadscan/internal/score"
	"github.com/goodroad-data/roadscan/internal/store"
	"github.com/goodroad-data/roadscan/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (mounts admin debug routes)")
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "roadscan.db", "Path to the sqlite database")
	configPath = flag.String("config", "", "Path to a tuning config JSON file (optional)")
	workers    = flag.Int("workers", 0, "Ingestion worker count override (0 uses config)")
	migrations = flag.String("migrations", "migrations", "Path to the migrations directory")
)

func main() {
	flag.Parse()

	// 'roadscan migrate <action>' manages the schema and exits without
	// starting the server.
	if flag.Arg(0) == "migrate" {
		store.RunMigrateCommand(flag.Args()[1:], *dbFile, *migrations)
		return
	}

	log.Printf("roadscan %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var cfg *config.TuningConfig
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	} else {
		cfg = config.MustLoadDefaultConfig()
	}
	if *workers > 0 {
		cfg.WorkerCount = workers
	}

	db, err := store.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	scorer, err := score.NewScorerFromTuning(cfg)
	if err != nil {
		log.Fatalf("Failed to build scorer: %v", err)
	}

	conditionCache := cache.New[[]geoquery.Result](cfg.GetCacheTTL())
	engine := geoquery.NewEngine(db, conditionCache, cfg)
	pipeline := ingest.New(cfg, scorer, db, conditionCache, &ingest.StoreNotifier{DB: db})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// analysis workers drain the ingestion queues until Stop
	pipeline.Start()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// admin debugging routes are only reachable in dev mode; in
		// production they stay unmounted
		if *devMode {
			db.AttachAdminRoutes(mux)
		}

		apiMux := api.NewServer(pipeline, engine, db, conditionCache).ServeMux()
		mux.Handle("/api/", apiMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for shutdown, then drain the pipeline so queued batches are
	// not lost.
	<-ctx.Done()
	wg.Wait()
	pipeline.Stop()
	log.Printf("Graceful shutdown complete")
}
