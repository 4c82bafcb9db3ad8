package backup

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	snapshotPrefix = "myco-"
	snapshotSuffix = ".db"

	// Microsecond precision keeps names unique even when snapshots are
	// taken back to back.
	snapshotTimeLayout = "20060102-150405.000000"
)

// snapshotName builds the file name for a snapshot taken at t, for
// example "myco-20260831-153000.000000.db".
func snapshotName(t time.Time) string {
	return snapshotPrefix + t.Format(snapshotTimeLayout) + snapshotSuffix
}

// snapshotTime recovers the creation time encoded in a snapshot file
// name. The second return is false for files this service did not
// create.
func snapshotTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
	t, err := time.ParseInLocation(snapshotTimeLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// cloneDatabase writes a consistent point-in-time copy of the database
// at src to dst. VACUUM INTO works under WAL mode, so the server can
// keep writing while the snapshot is taken.
func cloneDatabase(src, dst string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", src))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", dst)); err != nil {
		return fmt.Errorf("failed to clone database: %w", err)
	}
	return nil
}

// verifySnapshot opens a snapshot read-only and checks that its pages
// are intact and that it actually carries the cultivation schema. The
// second check catches snapshots taken from the wrong file.
func verifySnapshot(path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = db.Close() }()

	var check string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&check); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if check != "ok" {
		return fmt.Errorf("integrity check failed: %s", check)
	}

	var tables int
	err = db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'grows'").Scan(&tables)
	if err != nil {
		return fmt.Errorf("failed to inspect snapshot schema: %w", err)
	}
	if tables == 0 {
		return fmt.Errorf("snapshot has no grows table")
	}
	return nil
}

// installSnapshot replaces the database at target with a verified copy
// of the snapshot. The database must not be open while this runs.
func installSnapshot(snapshotPath, target string) error {
	if err := verifySnapshot(snapshotPath); err != nil {
		return fmt.Errorf("snapshot verification failed: %w", err)
	}

	src, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create database file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy snapshot: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("failed to sync database file: %w", err)
	}
	return verifySnapshot(target)
}
