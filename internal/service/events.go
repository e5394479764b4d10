// Package service implements the marketplace core: agent registry, listing
// lifecycle, the escrow/settlement state machine, owner administration, and
// read-only queries. Every mutating operation publishes a structured event on
// the bus; external collaborators consume those events and are never called
// synchronously.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// listingLockTTL bounds how long a crashed holder can keep a per-listing lock
// in distributed deployments.
const listingLockTTL = 10 * time.Second

// listingLockKey is the serialization point for all mutating operations on a
// listing and its escrow.
func listingLockKey(id int64) string {
	return fmt.Sprintf("listing:%d", id)
}

// publishEvent assigns the event an id and timestamp, then fans it out on the
// pub/sub channel and appends it to the durable stream. Publish failures are
// logged and never fail the triggering operation: the bookkeeping state is
// already committed and the stream is the recovery path.
func publishEvent(ctx context.Context, bus domain.EventBus, logger *slog.Logger, clock domain.Clock, ev domain.Event) {
	ev.ID = uuid.New().String()
	if ev.At.IsZero() {
		ev.At = clock.Now()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		logger.ErrorContext(ctx, "event marshal failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
		return
	}

	if pubErr := bus.Publish(ctx, domain.EventChannel, payload); pubErr != nil {
		logger.WarnContext(ctx, "event publish failed",
			slog.String("kind", string(ev.Kind)),
			slog.Int64("listing_id", ev.ListingID),
			slog.String("error", pubErr.Error()),
		)
	}
	if appendErr := bus.StreamAppend(ctx, domain.EventStream, payload); appendErr != nil {
		logger.WarnContext(ctx, "event stream append failed",
			slog.String("kind", string(ev.Kind)),
			slog.Int64("listing_id", ev.ListingID),
			slog.String("error", appendErr.Error()),
		)
	}
}

// auditLog writes an audit entry, logging (not failing) on error.
func auditLog(ctx context.Context, audit domain.AuditStore, logger *slog.Logger, event string, detail map[string]any) {
	if err := audit.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
