package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"databd/config"
	"databd/logging"
	"databd/scheduler"
	"databd/storage"
)

var (
	statsNow = flag.Bool("stats", false, "Recompute today's daily statistics and exit")
	resetAll = flag.Bool("reset", false, "Clear all stored data and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath, 0)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting databd...")
	log.Printf("Loaded %d source configs", len(cfg.Sources))
	for id, source := range cfg.Sources {
		log.Printf("  - %s (%s)", source.Name, id)
	}

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	if *resetAll {
		if err := store.ResetAllData(); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		log.Println("All tables cleared")
		return
	}

	sched := scheduler.New(cfg, store)

	if *statsNow {
		if err := sched.RecomputeNow(ctx); err != nil {
			log.Fatalf("Stats recompute failed: %v", err)
		}
		stats, err := store.GetStatistics(ctx)
		if err != nil {
			log.Fatalf("Failed to read statistics: %v", err)
		}
		log.Printf("Listings: %d total, %d visible", stats.TotalListings, stats.VisibleListings)
		log.Printf("Prices: avg %.0f, min %.0f, max %.0f", stats.AvgPrice, stats.MinPrice, stats.MaxPrice)
		log.Printf("Sessions: %d total, %d completed, %d running",
			stats.Sessions.Total, stats.Sessions.Completed, stats.Sessions.Running)
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Backend == "postgres" {
		store, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		log.Println("Connected to Postgres")
		return store, nil
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	log.Printf("SQLite database: %s", cfg.DBPath)
	return store, nil
}
