// Package backup takes periodic snapshots of the cultivation database
// and prunes old ones on a tiered hourly/daily/weekly/monthly schedule.
// Snapshots are plain SQLite files produced with VACUUM INTO, so any
// sqlite3 client can open them.
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config configures a snapshot Service.
type Config struct {
	// DatabasePath is the SQLite file to snapshot.
	DatabasePath string

	// Dir is where snapshots are written.
	Dir string

	// Interval between automatic snapshots. Defaults to one hour.
	Interval time.Duration

	// Keep bounds how many snapshots survive pruning, per age tier.
	Keep Retention

	// Verify runs an integrity check on every new snapshot.
	Verify bool
}

// Result reports one completed snapshot.
type Result struct {
	Path     string
	Size     int64
	Elapsed  time.Duration
	Verified bool
}

// Health summarizes the state of the snapshot service.
type Health struct {
	// Status is "healthy", "warning" or "error".
	Status       string
	Message      string
	LastSnapshot time.Time
	NextSnapshot time.Time
	Snapshots    int
	Dir          string
	BytesUsed    int64
}

// Service takes snapshots of one database on a fixed interval.
type Service struct {
	dbPath   string
	dir      string
	interval time.Duration
	keep     Retention
	verify   bool

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	last    time.Time
	next    time.Time
}

// New validates cfg, creates the snapshot directory and returns a
// Service ready to Run.
func New(cfg Config) (*Service, error) {
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &Service{
		dbPath:   cfg.DatabasePath,
		dir:      cfg.Dir,
		interval: interval,
		keep:     cfg.Keep.withDefaults(),
		verify:   cfg.Verify,
		stop:     make(chan struct{}),
	}, nil
}

// Run takes a snapshot every interval until ctx is cancelled or Stop
// is called. Failures are logged and the next tick tries again.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("snapshot service is already running")
	}
	s.running = true
	s.next = time.Now().Add(s.interval)
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Snapshot service started: interval=%v, dir=%s", s.interval, s.dir)

	for {
		select {
		case <-ctx.Done():
			log.Println("Snapshot service stopping (context cancelled)")
			return ctx.Err()

		case <-s.stop:
			log.Println("Snapshot service stopping (stop requested)")
			return nil

		case <-ticker.C:
			result, err := s.Take(ctx)
			if err != nil {
				log.Printf("Scheduled snapshot failed: %v", err)
			} else {
				log.Printf("Snapshot written: path=%s, size=%d bytes, elapsed=%v, verified=%v",
					result.Path, result.Size, result.Elapsed, result.Verified)
			}

			s.mu.Lock()
			s.next = time.Now().Add(s.interval)
			s.mu.Unlock()
		}
	}
}

// Stop ends a running Run loop.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("snapshot service is not running")
	}
	close(s.stop)
	s.running = false
	return nil
}

// Take writes one snapshot now, verifies it when configured, and
// prunes old snapshots.
func (s *Service) Take(ctx context.Context) (*Result, error) {
	start := time.Now()

	if _, err := os.Stat(s.dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	path := filepath.Join(s.dir, snapshotName(start))
	if err := cloneDatabase(s.dbPath, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	result := &Result{
		Path:    path,
		Size:    info.Size(),
		Elapsed: time.Since(start),
	}
	if s.verify {
		if err := verifySnapshot(path); err != nil {
			return result, err
		}
		result.Verified = true
	}

	s.mu.Lock()
	s.last = time.Now()
	s.mu.Unlock()

	// A pruning failure does not fail the snapshot.
	if err := prune(s.dir, s.keep); err != nil {
		log.Printf("Warning: failed to prune snapshots: %v", err)
	}
	return result, nil
}

// List returns the stored snapshots, newest first.
func (s *Service) List() ([]Snapshot, error) {
	return listSnapshots(s.dir)
}

// Restore replaces the database with the snapshot at path. The current
// database is cloned first and rolled back to if the restore fails.
// The Run loop must not be active.
func (s *Service) Restore(ctx context.Context, path string) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return fmt.Errorf("cannot restore while the snapshot service is running")
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("snapshot not found: %w", err)
	}

	keep := s.dbPath + ".pre-restore"
	if _, err := os.Stat(s.dbPath); err == nil {
		if err := cloneDatabase(s.dbPath, keep); err != nil {
			return fmt.Errorf("failed to save current database: %w", err)
		}
		defer func() { _ = os.Remove(keep) }()
	}

	if err := installSnapshot(path, s.dbPath); err != nil {
		if _, statErr := os.Stat(keep); statErr == nil {
			if rollbackErr := installSnapshot(keep, s.dbPath); rollbackErr != nil {
				return fmt.Errorf("restore failed and rollback failed: %v (restore error: %w)", rollbackErr, err)
			}
			return fmt.Errorf("restore failed, rolled back to previous state: %w", err)
		}
		return err
	}

	log.Printf("Database restored from snapshot: %s", path)
	return nil
}

// CheckHealth reports whether snapshots are being taken on schedule.
func (s *Service) CheckHealth() (*Health, error) {
	s.mu.Lock()
	last := s.last
	next := s.next
	s.mu.Unlock()

	snapshots, err := s.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	used, err := diskUsage(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to measure disk usage: %w", err)
	}

	health := &Health{
		Status:       "healthy",
		LastSnapshot: last,
		NextSnapshot: next,
		Snapshots:    len(snapshots),
		Dir:          s.dir,
		BytesUsed:    used,
	}
	switch {
	case last.IsZero():
		health.Message = "No snapshots yet"
	case time.Since(last) > 2*s.interval:
		health.Status = "warning"
		health.Message = fmt.Sprintf("Snapshot overdue by %v", time.Since(last)-s.interval)
	default:
		health.Message = fmt.Sprintf("Last snapshot: %v ago", time.Since(last).Round(time.Minute))
	}
	return health, nil
}
