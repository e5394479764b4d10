package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event bus channel and durable stream names. Every mutating marketplace
// operation publishes exactly one event; external collaborators (search
// indexer, webhook fan-out, reputation ledgers) consume these and are never
// called synchronously by the core.
const (
	EventChannel = "market.events"
	EventStream  = "stream:market.events"
)

// EventKind identifies the operation that produced an event.
type EventKind string

const (
	EventAgentRegistered      EventKind = "agent_registered"
	EventListingCreated       EventKind = "listing_created"
	EventListingCancelled     EventKind = "listing_cancelled"
	EventPurchaseInitiated    EventKind = "purchase_initiated"
	EventDeliveryMarked       EventKind = "delivery_marked"
	EventReceiptConfirmed     EventKind = "receipt_confirmed"
	EventPurchaseCompleted    EventKind = "purchase_completed"
	EventDisputeRaised        EventKind = "dispute_raised"
	EventDisputeResolved      EventKind = "dispute_resolved"
	EventFeeRateUpdated       EventKind = "fee_rate_updated"
	EventFeeRecipientUpdated  EventKind = "fee_recipient_updated"
	EventOwnershipTransferred EventKind = "ownership_transferred"
)

// Event is the envelope published for every state change. Fields that do not
// apply to a given kind are omitted from the JSON encoding.
type Event struct {
	ID        string         `json:"id"` // UUID, unique per emission
	Kind      EventKind      `json:"kind"`
	ListingID int64          `json:"listing_id,omitempty"`
	Actor     common.Address `json:"actor"`
	Seller    common.Address `json:"seller,omitempty"`
	Buyer     common.Address `json:"buyer,omitempty"`
	Winner    common.Address `json:"winner,omitempty"`
	Recipient common.Address `json:"recipient,omitempty"`
	AgentName string         `json:"agent_name,omitempty"`
	Category  Category       `json:"category,omitempty"`
	Amount    int64          `json:"amount,omitempty"`
	Fee       int64          `json:"fee,omitempty"`
	RateBps   int64          `json:"rate_bps,omitempty"`
	// AutoReleased marks a purchase_completed event that was settled by the
	// timeout path rather than explicit buyer confirmation.
	AutoReleased bool      `json:"auto_released,omitempty"`
	At           time.Time `json:"at"`
}

// StreamMessage represents a single entry read back from the durable
// event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus provides pub/sub fan-out and a durable, ordered stream for
// marketplace events.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
