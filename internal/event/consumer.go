package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hernancolliard/tienda-online/internal/domain"
	pkgkafka "github.com/hernancolliard/tienda-online/pkg/kafka"
)

// TopicProductCreated is published by the catalog when a product is added.
var TopicProductCreated = pkgkafka.Topic("product", "created")

// ProductAnnouncer mails subscribers about a new product.
type ProductAnnouncer interface {
	AnnounceProduct(ctx context.Context, p domain.ProductAnnouncement) error
}

// productCreatedData accepts both a single image_url and the catalog's images array.
type productCreatedData struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Images      []string        `json:"images"`
}

// ConsumerHandler turns catalog events into subscriber announcements.
type ConsumerHandler struct {
	announcer ProductAnnouncer
	logger    *slog.Logger
}

// NewConsumerHandler creates a new event consumer handler.
func NewConsumerHandler(announcer ProductAnnouncer, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{announcer: announcer, logger: logger}
}

// Handle processes one catalog event. Unknown event types are skipped.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != TopicProductCreated {
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var data productCreatedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}
	if data.ID <= 0 || data.Name == "" {
		return fmt.Errorf("%s event %s is missing product id or name", event.EventType, event.EventID)
	}

	announcement := domain.ProductAnnouncement{
		ID:          data.ID,
		Name:        data.Name,
		Description: data.Description,
		Price:       data.Price,
		ImageURL:    data.ImageURL,
	}
	if announcement.ImageURL == "" && len(data.Images) > 0 {
		announcement.ImageURL = data.Images[0]
	}

	h.logger.InfoContext(ctx, "announcing new product",
		slog.String("event_id", event.EventID),
		slog.Int64("product_id", data.ID),
	)
	return h.announcer.AnnounceProduct(ctx, announcement)
}

// NewProductCreatedConsumer builds the consumer for product-created events,
// guarded by store so a redelivered event does not mail subscribers twice.
func NewProductCreatedConsumer(brokers []string, groupID string, handler *ConsumerHandler,
	store pkgkafka.IdempotencyStore, logger *slog.Logger,
) *pkgkafka.Consumer {
	cfg := pkgkafka.ConsumerConfig{
		Brokers:      brokers,
		GroupID:      groupID,
		Topic:        TopicProductCreated,
		RetryBackoff: 500 * time.Millisecond,
	}
	guarded := pkgkafka.IdempotentHandler(store, handler.Handle, logger)
	return pkgkafka.NewConsumer(cfg, guarded, pkgkafka.NewDeadLetterWriter(brokers), logger)
}
