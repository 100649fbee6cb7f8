package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/hernancolliard/tienda-online/internal/domain"
	pkgkafka "github.com/hernancolliard/tienda-online/pkg/kafka"
)

// Kafka topics produced by the storefront. The event type equals the topic.
var (
	TopicCartUpdated         = pkgkafka.Topic("cart", "updated")
	TopicCartCleared         = pkgkafka.Topic("cart", "cleared")
	TopicCheckoutInitiated   = pkgkafka.Topic("checkout", "initiated")
	TopicPaymentNotification = pkgkafka.Topic("payment", "notification")
)

// Aggregate types and source.
const (
	AggregateTypeCart     = "cart"
	AggregateTypeCheckout = "checkout"
	AggregateTypePayment  = "payment"
	SourceStorefront      = "tienda-online"
)

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID string          `json:"session_id"`
	Items     []CartItemData  `json:"items"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
}

// CartItemData is a line item within cart events.
type CartItemData struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// CheckoutInitiatedData is the payload for a checkout.initiated event.
type CheckoutInitiatedData struct {
	SessionID    string          `json:"session_id"`
	PreferenceID string          `json:"preference_id"`
	Items        []CartItemData  `json:"items"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
}

// PaymentNotificationData is the payload for a payment.notification event.
type PaymentNotificationData struct {
	NotificationID string `json:"notification_id,omitempty"`
	Type           string `json:"type"`
	Action         string `json:"action,omitempty"`
	DataID         string `json:"data_id"`
	LiveMode       bool   `json:"live_mode"`
}

// Producer publishes storefront domain events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// PublishCartUpdated publishes a cart.updated event with the cart contents.
func (p *Producer) PublishCartUpdated(ctx context.Context, sessionID string, cart *domain.Cart) error {
	data := CartUpdatedData{
		SessionID: sessionID,
		Items:     itemData(cart.Items()),
		ItemCount: cart.ItemCount(),
		Total:     cart.Total(),
		Currency:  domain.CurrencyARS,
	}
	return p.publish(ctx, TopicCartUpdated, sessionID, AggregateTypeCart, data)
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, sessionID, reason string) error {
	return p.publish(ctx, TopicCartCleared, sessionID, AggregateTypeCart, CartClearedData{SessionID: sessionID, Reason: reason})
}

// PublishCheckoutInitiated publishes a checkout.initiated event for a created preference.
func (p *Producer) PublishCheckoutInitiated(ctx context.Context, pref domain.PaymentPreference, result domain.PreferenceResult) error {
	items := make([]CartItemData, len(pref.Lines))
	for i, l := range pref.Lines {
		items[i] = CartItemData{ProductID: l.ProductID, Name: l.Title, Price: l.UnitPrice, Quantity: l.Quantity}
	}
	data := CheckoutInitiatedData{
		SessionID:    pref.ExternalReference,
		PreferenceID: result.ID,
		Items:        items,
		Total:        pref.Total(),
		Currency:     pref.Currency,
	}
	return p.publish(ctx, TopicCheckoutInitiated, pref.ExternalReference, AggregateTypeCheckout, data)
}

// PublishPaymentNotification forwards a provider webhook call.
func (p *Producer) PublishPaymentNotification(ctx context.Context, n domain.PaymentNotification) error {
	data := PaymentNotificationData{
		NotificationID: n.ID,
		Type:           n.Type,
		Action:         n.Action,
		DataID:         n.DataID,
		LiveMode:       n.LiveMode,
	}
	return p.publish(ctx, TopicPaymentNotification, n.DataID, AggregateTypePayment, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(ctx, topic, aggregateID, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

func itemData(items []domain.LineItem) []CartItemData {
	out := make([]CartItemData, len(items))
	for i, it := range items {
		out[i] = CartItemData{ProductID: it.ID, Name: it.Name, Price: it.Price, Quantity: it.Quantity}
	}
	return out
}
