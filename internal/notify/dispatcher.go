package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// Dispatcher subscribes to the live event channel and fans each event out:
// chat senders get a formatted alert, webhook endpoints get the raw signed
// payload. A failed delivery is logged and never blocks the others.
type Dispatcher struct {
	bus      domain.EventBus
	notifier *Notifier
	webhooks []*WebhookSender
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. notifier may carry zero senders and
// webhooks may be empty; the dispatcher still drains the channel.
func NewDispatcher(bus domain.EventBus, notifier *Notifier, webhooks []*WebhookSender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		notifier: notifier,
		webhooks: webhooks,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// Run consumes events until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ch, err := d.bus.Subscribe(ctx, domain.EventChannel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.EventChannel, err)
	}

	d.logger.InfoContext(ctx, "dispatcher started", slog.String("channel", domain.EventChannel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			d.deliver(ctx, payload)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, payload []byte) {
	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		d.logger.WarnContext(ctx, "dropping malformed event",
			slog.String("error", err.Error()),
		)
		return
	}

	title, message := formatEvent(ev)
	if err := d.notifier.Notify(ctx, string(ev.Kind), title, message); err != nil {
		d.logger.WarnContext(ctx, "chat delivery failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}

	for _, wh := range d.webhooks {
		if err := wh.SendEvent(ctx, payload); err != nil {
			d.logger.WarnContext(ctx, "webhook delivery failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// formatEvent renders a human-readable alert for an event.
func formatEvent(ev domain.Event) (title, message string) {
	switch ev.Kind {
	case domain.EventAgentRegistered:
		return "Agent registered",
			fmt.Sprintf("%q is now %s", ev.AgentName, ev.Actor.Hex())
	case domain.EventListingCreated:
		return "New listing",
			fmt.Sprintf("#%d (%s) listed by %s for %d", ev.ListingID, ev.Category, ev.Seller.Hex(), ev.Amount)
	case domain.EventListingCancelled:
		return "Listing cancelled",
			fmt.Sprintf("#%d cancelled by its seller", ev.ListingID)
	case domain.EventPurchaseInitiated:
		return "Purchase",
			fmt.Sprintf("#%d: %d locked in escrow by %s", ev.ListingID, ev.Amount, ev.Buyer.Hex())
	case domain.EventDeliveryMarked:
		return "Delivery marked",
			fmt.Sprintf("#%d: seller marked the artifact delivered", ev.ListingID)
	case domain.EventReceiptConfirmed:
		return "Receipt confirmed",
			fmt.Sprintf("#%d: buyer confirmed receipt", ev.ListingID)
	case domain.EventPurchaseCompleted:
		how := "confirmed"
		if ev.AutoReleased {
			how = "auto-released"
		}
		return "Purchase completed",
			fmt.Sprintf("#%d settled (%s): %d to seller, %d fee", ev.ListingID, how, ev.Amount-ev.Fee, ev.Fee)
	case domain.EventDisputeRaised:
		return "Dispute raised",
			fmt.Sprintf("#%d disputed by %s", ev.ListingID, ev.Actor.Hex())
	case domain.EventDisputeResolved:
		return "Dispute resolved",
			fmt.Sprintf("#%d: %d awarded to %s", ev.ListingID, ev.Amount, ev.Winner.Hex())
	case domain.EventFeeRateUpdated:
		return "Fee rate updated",
			fmt.Sprintf("platform fee is now %d bps", ev.RateBps)
	case domain.EventFeeRecipientUpdated:
		return "Fee recipient updated",
			fmt.Sprintf("fees now pay out to %s", ev.Recipient.Hex())
	case domain.EventOwnershipTransferred:
		return "Ownership transferred",
			fmt.Sprintf("platform owner is now %s", ev.Recipient.Hex())
	default:
		return string(ev.Kind), fmt.Sprintf("listing #%d", ev.ListingID)
	}
}
