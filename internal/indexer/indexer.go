// Package indexer tails the durable event stream and maintains the read-side
// projections: the listing cache consumed by the query layer and the cold
// archive of completed purchases. It is the only writer of the listing cache;
// the trading core never touches it.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vardominator/moltmarket/internal/domain"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 100
	readCount           = 100
)

// Indexer consumes the event stream in order, starting from the beginning on
// a fresh start. Settled purchases are buffered and flushed to the archiver
// in batches; everything else updates the cache immediately.
type Indexer struct {
	bus      domain.EventBus
	listings domain.ListingStore
	cache    domain.ListingCache
	archiver domain.Archiver
	logger   *slog.Logger

	pollInterval time.Duration
	batchSize    int

	lastID  string
	pending []domain.Event
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithPollInterval overrides how long the indexer sleeps when the stream has
// no new entries.
func WithPollInterval(d time.Duration) Option {
	return func(ix *Indexer) { ix.pollInterval = d }
}

// WithBatchSize overrides how many completed purchases are buffered before a
// flush to the archiver.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) { ix.batchSize = n }
}

// New creates an Indexer. archiver may be nil, in which case completed
// purchases are not archived.
func New(
	bus domain.EventBus,
	listings domain.ListingStore,
	cache domain.ListingCache,
	archiver domain.Archiver,
	logger *slog.Logger,
	opts ...Option,
) *Indexer {
	ix := &Indexer{
		bus:          bus,
		listings:     listings,
		cache:        cache,
		archiver:     archiver,
		logger:       logger.With(slog.String("component", "indexer")),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Run polls the stream until the context is cancelled. Buffered but
// unflushed archive entries are flushed on shutdown.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.logger.InfoContext(ctx, "indexer started", slog.String("stream", domain.EventStream))

	for {
		n, err := ix.Drain(ctx)
		if err != nil {
			ix.logger.ErrorContext(ctx, "indexer: drain failed",
				slog.String("error", err.Error()),
			)
		}

		if n == 0 {
			timer := time.NewTimer(ix.pollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				ix.flush(context.WithoutCancel(ctx))
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
			ix.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		default:
		}
	}
}

// Drain consumes every entry currently in the stream and returns how many it
// processed. It is the single-step building block Run loops over; tests call
// it directly.
func (ix *Indexer) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		msgs, err := ix.bus.StreamRead(ctx, domain.EventStream, ix.cursor(), readCount)
		if err != nil {
			return total, fmt.Errorf("indexer: stream read: %w", err)
		}
		if len(msgs) == 0 {
			return total, nil
		}

		for _, msg := range msgs {
			ix.apply(ctx, msg)
			ix.lastID = msg.ID
			total++
		}
	}
}

func (ix *Indexer) cursor() string {
	if ix.lastID == "" {
		return "0"
	}
	return ix.lastID
}

// apply projects a single stream entry. A malformed payload is logged and
// skipped so one bad entry never wedges the stream.
func (ix *Indexer) apply(ctx context.Context, msg domain.StreamMessage) {
	var ev domain.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		ix.logger.WarnContext(ctx, "indexer: skipping malformed entry",
			slog.String("stream_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if ev.ListingID != 0 {
		ix.refresh(ctx, ev.ListingID)
	}

	if ev.Kind == domain.EventPurchaseCompleted && ix.archiver != nil {
		ix.pending = append(ix.pending, ev)
		if len(ix.pending) >= ix.batchSize {
			ix.flush(ctx)
		}
	}
}

// refresh re-reads the listing from the store and rewrites the cache entry.
// A listing that vanished from the store is invalidated instead.
func (ix *Indexer) refresh(ctx context.Context, id int64) {
	l, err := ix.listings.GetByID(ctx, id)
	if err != nil {
		_ = ix.cache.Invalidate(ctx, id)
		return
	}
	if err := ix.cache.Set(ctx, l); err != nil {
		ix.logger.WarnContext(ctx, "indexer: cache set failed",
			slog.Int64("listing_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// flush uploads the pending archive batch. On failure the batch is kept so
// the next flush retries it.
func (ix *Indexer) flush(ctx context.Context) {
	if len(ix.pending) == 0 || ix.archiver == nil {
		return
	}

	path, err := ix.archiver.ArchiveEvents(ctx, ix.pending)
	if err != nil {
		ix.logger.ErrorContext(ctx, "indexer: archive flush failed",
			slog.Int("count", len(ix.pending)),
			slog.String("error", err.Error()),
		)
		return
	}

	ix.logger.InfoContext(ctx, "indexer: archived completed purchases",
		slog.Int("count", len(ix.pending)),
		slog.String("path", path),
	)
	ix.pending = ix.pending[:0]
}
