// Command myco-backup runs the automated database backup service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mycotrack/myco/internal/backup"
	"github.com/mycotrack/myco/internal/config"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (optional, env vars apply on top)")
	dbPath     = flag.String("db", "", "Path to database file (overrides config)")
	backupDir  = flag.String("backup-dir", "", "Backup directory path (overrides config)")
	interval   = flag.Duration("interval", 0, "Backup interval (overrides config)")
	verify     = flag.Bool("verify", true, "Verify backups after creation")
	oneshot    = flag.Bool("oneshot", false, "Perform a single backup and exit")
	restore    = flag.String("restore", "", "Restore database from backup file and exit")
	healthCmd  = flag.Bool("health", false, "Check backup service health and exit")
	listCmd    = flag.Bool("list", false, "List all available backups and exit")
)

func main() {
	flag.Parse()

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
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dbPathFinal := cfg.Storage.DataPath + "/myco.db"
	if *dbPath != "" {
		dbPathFinal = *dbPath
	}

	backupDirFinal := cfg.Backup.Path
	if *backupDir != "" {
		backupDirFinal = *backupDir
	}

	intervalFinal := 1 * time.Hour
	if cfg.Backup.Interval != "" {
		if d, err := time.ParseDuration(cfg.Backup.Interval); err == nil {
			intervalFinal = d
		}
	}
	if *interval > 0 {
		intervalFinal = *interval
	}

	service, err := backup.New(backup.Config{
		DatabasePath: dbPathFinal,
		Dir:          backupDirFinal,
		Interval:     intervalFinal,
		Keep: backup.Retention{
			Hourly:  cfg.Backup.RetentionHourly,
			Daily:   cfg.Backup.RetentionDaily,
			Weekly:  cfg.Backup.RetentionWeekly,
			Monthly: cfg.Backup.RetentionMonthly,
		},
		Verify: *verify,
	})
	if err != nil {
		log.Fatalf("Failed to create backup service: %v", err)
	}

	ctx := context.Background()

	if *restore != "" {
		handleRestore(ctx, service, *restore)
		return
	}

	if *healthCmd {
		handleHealth(service)
		return
	}

	if *listCmd {
		handleList(service)
		return
	}

	if *oneshot {
		handleOneshot(ctx, service)
		return
	}

	runService(ctx, service)
}

func handleRestore(ctx context.Context, service *backup.Service, backupPath string) {
	log.Printf("Restoring database from backup: %s", backupPath)

	if err := service.Restore(ctx, backupPath); err != nil {
		log.Fatalf("Restore failed: %v", err)
	}

	log.Println("Database restored successfully")
}

func handleHealth(service *backup.Service) {
	health, err := service.CheckHealth()
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}

	fmt.Printf("Status: %s\n", health.Status)
	if health.Message != "" {
		fmt.Printf("Message: %s\n", health.Message)
	}
	fmt.Printf("Snapshots: %d\n", health.Snapshots)
	fmt.Printf("Disk Space Used: %.2f MB\n", float64(health.BytesUsed)/(1024*1024))
	fmt.Printf("Backup Directory: %s\n", health.Dir)

	if !health.LastSnapshot.IsZero() {
		fmt.Printf("Last Backup: %s (%s ago)\n",
			health.LastSnapshot.Format(time.RFC3339),
			time.Since(health.LastSnapshot).Round(time.Minute))
	} else {
		fmt.Println("Last Backup: Never")
	}

	if !health.NextSnapshot.IsZero() {
		fmt.Printf("Next Backup: %s (in %s)\n",
			health.NextSnapshot.Format(time.RFC3339),
			time.Until(health.NextSnapshot).Round(time.Minute))
	}

	if health.Status != "healthy" {
		os.Exit(1)
	}
}

func handleList(service *backup.Service) {
	backups, err := service.List()
	if err != nil {
		log.Fatalf("Failed to list backups: %v", err)
	}

	if len(backups) == 0 {
		fmt.Println("No backups found")
		return
	}

	fmt.Printf("Found %d backup(s):\n\n", len(backups))
	for i, b := range backups {
		fmt.Printf("%d. %s\n", i+1, b.Path)
		fmt.Printf("   Size: %.2f MB\n", float64(b.Size)/(1024*1024))
		fmt.Printf("   Created: %s (%s ago)\n",
			b.TakenAt.Format(time.RFC3339),
			time.Since(b.TakenAt).Round(time.Minute))
		fmt.Println()
	}
}

func handleOneshot(ctx context.Context, service *backup.Service) {
	log.Println("Performing one-time backup...")

	result, err := service.Take(ctx)
	if err != nil {
		log.Fatalf("Backup failed: %v", err)
	}

	log.Printf("Backup completed successfully:")
	log.Printf("  Path: %s", result.Path)
	log.Printf("  Size: %.2f MB", float64(result.Size)/(1024*1024))
	log.Printf("  Elapsed: %v", result.Elapsed)
	log.Printf("  Verified: %v", result.Verified)
}

func runService(ctx context.Context, service *backup.Service) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := service.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Backup service error: %v", err)
		}
	}()

	log.Println("myco backup service started")
	log.Println("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down backup service...")
	cancel()
	if err := service.Stop(); err != nil {
		log.Printf("Error stopping backup service: %v", err)
	}
}
