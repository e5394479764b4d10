// Package janitor runs scheduled maintenance: sweeping escrows whose grace
// period has elapsed and pruning expired event archives from blob storage.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// archivePrefix is where the indexer writes event batches.
const archivePrefix = "archive/events/"

// Releaser force-settles a delivered trade once its grace period has
// elapsed. Satisfied by the escrow service.
type Releaser interface {
	AutoRelease(ctx context.Context, caller common.Address, id int64) error
}

// Janitor performs periodic maintenance runs. Archive pruning is skipped
// when blob storage is not wired or retention is disabled.
type Janitor struct {
	escrows       domain.EscrowStore
	releaser      Releaser
	reader        domain.BlobReader
	deleter       domain.BlobDeleter
	retentionDays int
	clock         domain.Clock
	logger        *slog.Logger
}

// New creates a Janitor. reader and deleter may be nil, in which case only
// the auto-release sweep runs.
func New(
	escrows domain.EscrowStore,
	releaser Releaser,
	reader domain.BlobReader,
	deleter domain.BlobDeleter,
	retentionDays int,
	clock domain.Clock,
	logger *slog.Logger,
) *Janitor {
	return &Janitor{
		escrows:       escrows,
		releaser:      releaser,
		reader:        reader,
		deleter:       deleter,
		retentionDays: retentionDays,
		clock:         clock,
		logger:        logger.With(slog.String("component", "janitor")),
	}
}

// Run executes a single maintenance pass: release overdue escrows, then
// prune expired archive objects.
func (j *Janitor) Run(ctx context.Context) error {
	released, err := j.releaseDue(ctx)
	if err != nil {
		return fmt.Errorf("janitor: release sweep: %w", err)
	}

	pruned, err := j.pruneArchive(ctx)
	if err != nil {
		return fmt.Errorf("janitor: archive prune: %w", err)
	}

	j.logger.InfoContext(ctx, "maintenance run complete",
		slog.Int("escrows_released", released),
		slog.Int("archives_pruned", pruned),
	)
	return nil
}

// releaseDue settles every delivered, unconfirmed escrow whose grace period
// has elapsed. Individual failures are logged and skipped so one stuck trade
// cannot block the sweep; a trade that was disputed after being listed is
// left for arbitration.
func (j *Janitor) releaseDue(ctx context.Context) (int, error) {
	cutoff := j.clock.Now().Add(-domain.AutoReleaseGracePeriod)

	due, err := j.escrows.ListReleasable(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, e := range due {
		if err := j.releaser.AutoRelease(ctx, domain.EscrowVault, e.ListingID); err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				j.logger.DebugContext(ctx, "skipping escrow not eligible for release",
					slog.Int64("listing_id", e.ListingID),
					slog.String("reason", err.Error()),
				)
				continue
			}
			j.logger.WarnContext(ctx, "auto-release failed",
				slog.Int64("listing_id", e.ListingID),
				slog.String("error", err.Error()),
			)
			continue
		}
		released++
	}
	return released, nil
}

// pruneArchive deletes archived event batches older than the retention
// window.
func (j *Janitor) pruneArchive(ctx context.Context) (int, error) {
	if j.reader == nil || j.deleter == nil || j.retentionDays <= 0 {
		return 0, nil
	}

	cutoff := j.clock.Now().Add(-time.Duration(j.retentionDays) * 24 * time.Hour)

	infos, err := j.reader.List(ctx, archivePrefix)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, info := range infos {
		if !info.LastModified.Before(cutoff) {
			continue
		}
		if err := j.deleter.Delete(ctx, info.Path); err != nil {
			j.logger.WarnContext(ctx, "archive delete failed",
				slog.String("path", info.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		pruned++
	}
	return pruned, nil
}

// RunCron runs maintenance on a cron schedule until the context is
// cancelled. It supports cron expressions in the standard 5-field format:
// "minute hour day-of-month month day-of-week".
//
// Example: "0 * * * *" runs at the top of every hour.
func (j *Janitor) RunCron(ctx context.Context, cronExpr string) error {
	j.logger.Info("janitor cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, j.clock.Now())
		if err != nil {
			return fmt.Errorf("janitor: parsing cron expression %q: %w", cronExpr, err)
		}

		wait := time.Until(next)
		j.logger.Info("janitor waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("janitor cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("maintenance run failed", slog.String("error", err.Error()))
			}
		}
	}
}
