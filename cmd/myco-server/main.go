// Command myco-server runs the cultivation tracker HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mycotrack/myco/internal/backup"
	"github.com/mycotrack/myco/internal/config"
	"github.com/mycotrack/myco/internal/server"
	"github.com/mycotrack/myco/internal/storage/postgres"
	"github.com/mycotrack/myco/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional, env vars apply on top)")
	migrationsDir := flag.String("migrations", "", "Directory of SQL migration files to apply on startup (sqlite only)")
	flag.Parse()

	// Load .env if present so MYCO_* vars can live beside the binary.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env: %v", err)
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadConfigFromFile(*configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stores server.Stores
	sqlitePath := cfg.Storage.DataPath + "/myco.db"

	switch cfg.Storage.Engine {
	case "postgres":
		store, err := postgres.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			log.Fatalf("Failed to open PostgreSQL storage: %v", err)
		}
		defer store.Close()
		stores = server.Stores{Grows: store, Teks: store, Gateways: store, Users: store}
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		store, err := sqlite.Open(sqlitePath)
		if err != nil {
			log.Fatalf("Failed to open SQLite storage: %v", err)
		}
		defer store.Close()
		if *migrationsDir != "" {
			if err := store.RunMigrations(*migrationsDir); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}
		stores = server.Stores{Grows: store, Teks: store, Gateways: store, Users: store}
	}

	// Automated backups only apply to the embedded engine; postgres
	// deployments bring their own backup tooling.
	if cfg.Backup.Enabled && cfg.Storage.Engine == "sqlite" {
		service, err := newBackupService(cfg, sqlitePath)
		if err != nil {
			log.Fatalf("Failed to create backup service: %v", err)
		}
		go func() {
			if err := service.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("Backup service error: %v", err)
			}
		}()
		defer service.Stop()
	}

	addr, wsHub, err := server.Start(ctx, cfg, stores)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer wsHub.Stop()
	log.Printf("myco API listening at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second)
}

func newBackupService(cfg *config.Config, dbPath string) (*backup.Service, error) {
	interval := 24 * time.Hour
	if cfg.Backup.Interval != "" {
		if d, err := time.ParseDuration(cfg.Backup.Interval); err == nil {
			interval = d
		}
	}

	return backup.New(backup.Config{
		DatabasePath: dbPath,
		Dir:          cfg.Backup.Path,
		Interval:     interval,
		Keep: backup.Retention{
			Hourly:  cfg.Backup.RetentionHourly,
			Daily:   cfg.Backup.RetentionDaily,
			Weekly:  cfg.Backup.RetentionWeekly,
			Monthly: cfg.Backup.RetentionMonthly,
		},
		Verify: cfg.Backup.Verify,
	})
}
