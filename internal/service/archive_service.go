package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outcomex/settle/internal/domain"
)

const (
	// archiveLockKey names the distributed lock serializing archive runs
	// across instances.
	archiveLockKey = "archive"

	// archiveLockTTL bounds how long a crashed instance can hold the lock.
	archiveLockTTL = 10 * time.Minute
)

// ArchiveService exports aged fill and audit history to cold storage. Runs
// take a distributed lock so only one instance exports at a time; the
// archiver itself is idempotent per month.
type ArchiveService struct {
	archiver  domain.Archiver
	locks     domain.LockManager
	clock     domain.Clock
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewArchiveService creates an ArchiveService. retention is how far back
// records stay in Postgres; interval paces the periodic Run loop.
func NewArchiveService(
	archiver domain.Archiver,
	locks domain.LockManager,
	clock domain.Clock,
	retention time.Duration,
	interval time.Duration,
	logger *slog.Logger,
) *ArchiveService {
	return &ArchiveService{
		archiver:  archiver,
		locks:     locks,
		clock:     clock,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// RunOnce takes the job lock and exports one batch of fills and audit
// entries older than the retention cutoff. Fails ErrLockHeld when another
// instance is already running the job.
func (s *ArchiveService) RunOnce(ctx context.Context) error {
	unlock, err := s.locks.Acquire(ctx, archiveLockKey, archiveLockTTL)
	if err != nil {
		return fmt.Errorf("archive_service: acquire lock: %w", err)
	}
	defer unlock()

	cutoff := s.clock.Now().Add(-s.retention)

	var fills, audits int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fills, err = s.archiver.ArchiveFills(gctx, cutoff)
		return err
	})
	g.Go(func() error {
		var err error
		audits, err = s.archiver.ArchiveAudit(gctx, cutoff)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("archive_service: run: %w", err)
	}

	s.logger.InfoContext(ctx, "archive_service: run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("fills", fills),
		slog.Int64("audit_entries", audits),
	)

	return nil
}

// Run executes the job on a fixed interval until the context ends. A held
// lock is a skip, not a failure; other errors are logged and the next tick
// retries.
func (s *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "archive_service: started",
		slog.Duration("interval", s.interval),
		slog.Duration("retention", s.retention),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					s.logger.InfoContext(ctx, "archive_service: lock held elsewhere, skipping")
					continue
				}
				s.logger.ErrorContext(ctx, "archive_service: run failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
