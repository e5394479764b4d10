package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// EventBus implements domain.EventBus in process. Publish fans out to live
// subscribers of the channel; StreamAppend keeps an ordered in-memory log so
// the indexer works identically against the memory and redis backends.
type EventBus struct {
	mu      sync.Mutex
	subs    map[string][]chan []byte
	streams map[string][][]byte
}

// NewEventBus creates an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs:    make(map[string][]chan []byte),
		streams: make(map[string][][]byte),
	}
}

// Publish delivers the payload to every current subscriber of the channel.
// Slow subscribers with a full buffer are skipped rather than blocked.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a buffered channel for the given channel name. The
// subscription is removed and the channel closed when ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// StreamAppend appends the payload to the named stream log.
func (b *EventBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

// StreamRead returns up to count messages after lastID. Message ids are
// 1-based decimal positions in the log; "0", "0-0", and "" read from the
// beginning, matching how the redis backend treats its stream cursors.
func (b *EventBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	switch lastID {
	case "", "0", "0-0":
	default:
		n, err := strconv.Atoi(lastID)
		if err == nil {
			start = n
		}
	}

	log := b.streams[stream]
	if start >= len(log) {
		return nil, nil
	}

	var out []domain.StreamMessage
	for i := start; i < len(log) && (count <= 0 || len(out) < count); i++ {
		out = append(out, domain.StreamMessage{
			ID:      strconv.Itoa(i + 1),
			Payload: log[i],
		})
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
