package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"farewatch/internal/types"
)

// archiveBatchSize bounds how many alert rows one archival pass moves.
const archiveBatchSize = 1000

// ArchiveAlertStore is the slice of the alert repository the archiver uses.
type ArchiveAlertStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.Alert, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// AlertArchiver moves alert rows past the retention window out of the
// database into gzipped JSONL batch files. Rows are deleted only after the
// batch file is durably written, so a crash mid-archive duplicates rows in
// the archive rather than losing them.
type AlertArchiver struct {
	alerts    ArchiveAlertStore
	dir       string
	retention time.Duration
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewAlertArchiver creates an archiver writing batches under dir.
func NewAlertArchiver(alerts ArchiveAlertStore, dir string, retention time.Duration, logger *slog.Logger) *AlertArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertArchiver{
		alerts:    alerts,
		dir:       dir,
		retention: retention,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// WithNow overrides the archiver's clock. Intended for tests.
func (a *AlertArchiver) WithNow(fn func() time.Time) *AlertArchiver {
	a.nowFn = fn
	return a
}

// Run performs one archival pass and returns the number of rows moved.
// An empty pass is normal and returns (0, nil).
func (a *AlertArchiver) Run(ctx context.Context) (int, error) {
	now := a.nowFn()
	cutoff := now.Add(-a.retention)

	alerts, err := a.alerts.ListBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("archiver: failed to list expired alerts: %w", err)
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	path := filepath.Join(a.dir, fmt.Sprintf("alerts-%s.jsonl.gz", now.UTC().Format("20060102T150405Z")))
	if err := a.writeBatch(path, alerts); err != nil {
		return 0, err
	}

	ids := make([]string, len(alerts))
	for i, al := range alerts {
		ids[i] = al.ID
	}
	deleted, err := a.alerts.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("archiver: batch written to %s but delete failed: %w", path, err)
	}

	a.logger.InfoContext(ctx, "alert batch archived",
		"file", path,
		"rows", deleted,
		"cutoff", cutoff.Format(time.RFC3339),
	)
	return deleted, nil
}

// writeBatch writes alerts as one gzipped JSONL file. The file is written to
// a temp name and renamed into place so partial writes are never mistaken
// for complete batches.
func (a *AlertArchiver) writeBatch(path string, alerts []types.Alert) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("archiver: failed to create archive dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("archiver: failed to create batch file: %w", err)
	}

	zw := gzip.NewWriter(f)
	enc := json.NewEncoder(zw)
	for _, al := range alerts {
		if err := enc.Encode(al); err != nil {
			zw.Close()
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("archiver: failed to encode alert %s: %w", al.ID, err)
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("archiver: failed to finalize gzip stream: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archiver: failed to close batch file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archiver: failed to publish batch file: %w", err)
	}
	return nil
}

// ArchiveScheduler runs the archiver once a day with the same explicit
// lifecycle as the sweep scheduler.
type ArchiveScheduler struct {
	archiver *AlertArchiver
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewArchiveScheduler creates a daily archive scheduler.
func NewArchiveScheduler(archiver *AlertArchiver, logger *slog.Logger) *ArchiveScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveScheduler{
		archiver: archiver,
		interval: 24 * time.Hour,
		logger:   logger,
	}
}

// Start launches the archive loop.
func (s *ArchiveScheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.archiver.Run(loopCtx); err != nil {
					s.logger.Error("alert archival failed", "error", err)
				}
			}
		}
	}()
	s.logger.Info("archive scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for it to exit.
func (s *ArchiveScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("archive scheduler stopped")
}
