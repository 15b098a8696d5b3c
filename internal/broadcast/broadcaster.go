package broadcast

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/scraplink/backend/internal/models"
)

// OrderGetter resolves the order being announced.
type OrderGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// ScrapperFinder lists the scrappers eligible for a service.
type ScrapperFinder interface {
	FindEligible(ctx context.Context, service string, limit int) ([]*models.Scrapper, error)
}

// NotificationSender delivers one push message to one device token.
type NotificationSender interface {
	Send(ctx context.Context, token string, p Payload) error
}

// Payload is a single push notification.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Broadcaster fans a new order out to every eligible online scrapper.
// Delivery is best effort: individual send failures are counted and logged,
// never propagated, so a flaky push provider cannot block order flow.
type Broadcaster struct {
	orders    OrderGetter
	scrappers ScrapperFinder
	sender    NotificationSender
	logger    *slog.Logger
}

func NewBroadcaster(orders OrderGetter, scrappers ScrapperFinder, sender NotificationSender, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{orders: orders, scrappers: scrappers, sender: sender, logger: logger}
}

// eligibleLimit caps one broadcast's fan-out.
const eligibleLimit = 100

// Notify announces the order to eligible scrappers. The only hard failure is
// not being able to load the order; everything past that is best effort.
func (b *Broadcaster) Notify(ctx context.Context, orderID uuid.UUID) error {
	order, err := b.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order for broadcast: %w", err)
	}
	if order.Status != models.OrderStatusPending || order.AssignmentStatus != models.AssignmentUnassigned {
		b.logger.Info("skipping broadcast, order no longer open",
			"order_id", orderID, "status", order.Status)
		return nil
	}

	service := models.ServiceForKind(order.Kind)
	scrappers, err := b.scrappers.FindEligible(ctx, service, eligibleLimit)
	if err != nil {
		b.logger.Error("find eligible scrappers", "order_id", orderID, "error", err)
		return nil
	}
	if len(scrappers) == 0 {
		b.logger.Info("no eligible scrappers online", "order_id", orderID, "service", service)
		return nil
	}

	payload := payloadFor(order)
	var sent, failed int
	for _, scr := range scrappers {
		for _, token := range scr.FCMTokens {
			if err := b.sender.Send(ctx, token, payload); err != nil {
				failed++
				b.logger.Warn("push send failed",
					"order_id", orderID, "scrapper_id", scr.ID, "error", err)
				continue
			}
			sent++
		}
	}

	b.logger.Info("order broadcast done",
		"order_id", orderID, "scrappers", len(scrappers), "sent", sent, "failed", failed)
	return nil
}

func payloadFor(order *models.Order) Payload {
	title := "New pickup request"
	body := fmt.Sprintf("Scrap pickup near %s", order.PickupAddress)
	if order.Kind == models.OrderKindService {
		title = "New service request"
		body = fmt.Sprintf("Service booking near %s", order.PickupAddress)
	}
	return Payload{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"order_id": order.ID.String(),
			"kind":     order.Kind,
		},
	}
}
