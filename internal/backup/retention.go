package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Retention says how many snapshots to keep per age tier. Snapshots
// younger than a day count against Hourly, up to a week against Daily,
// up to a month against Weekly, up to a year against Monthly. Anything
// older than a year is always removed.
type Retention struct {
	Hourly  int
	Daily   int
	Weekly  int
	Monthly int
}

func (r Retention) withDefaults() Retention {
	if r.Hourly == 0 {
		r.Hourly = 24
	}
	if r.Daily == 0 {
		r.Daily = 7
	}
	if r.Weekly == 0 {
		r.Weekly = 4
	}
	if r.Monthly == 0 {
		r.Monthly = 12
	}
	return r
}

// Snapshot describes one stored snapshot file.
type Snapshot struct {
	Path    string
	TakenAt time.Time
	Size    int64
}

// listSnapshots returns the snapshots in dir, newest first. Only files
// this service named are included, so unrelated files in the snapshot
// directory are never touched. The creation time comes from the file
// name rather than file metadata, which copy and sync tools rewrite.
func listSnapshots(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		takenAt, ok := snapshotTime(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Path:    filepath.Join(dir, entry.Name()),
			TakenAt: takenAt,
			Size:    info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].TakenAt.After(snapshots[j].TakenAt)
	})
	return snapshots, nil
}

// prune removes snapshots that fall outside the retention quotas. It
// walks the snapshots newest first, counts each one against the tier
// its age lands in, and deletes those over the tier's quota.
func prune(dir string, keep Retention) error {
	snapshots, err := listSnapshots(dir)
	if err != nil {
		return err
	}

	tiers := []struct {
		maxAge time.Duration
		quota  int
	}{
		{24 * time.Hour, keep.Hourly},
		{7 * 24 * time.Hour, keep.Daily},
		{30 * 24 * time.Hour, keep.Weekly},
		{365 * 24 * time.Hour, keep.Monthly},
	}

	now := time.Now()
	counts := make([]int, len(tiers))
	var removeErr error
	for _, snap := range snapshots {
		age := now.Sub(snap.TakenAt)
		expired := true
		for i, tier := range tiers {
			if age < tier.maxAge {
				counts[i]++
				expired = counts[i] > tier.quota
				break
			}
		}
		if !expired {
			continue
		}
		if err := os.Remove(snap.Path); err != nil {
			// Keep going, a stuck file should not block the rest.
			removeErr = err
		}
	}

	if removeErr != nil {
		return fmt.Errorf("failed to remove expired snapshots: %w", removeErr)
	}
	return nil
}

func diskUsage(dir string) (int64, error) {
	snapshots, err := listSnapshots(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, snap := range snapshots {
		total += snap.Size
	}
	return total, nil
}
