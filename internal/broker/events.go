package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, event.OrderID, event)
}

// PublishCatalogUpdated publishes CatalogUpdated event
func (ep *EventPublisher) PublishCatalogUpdated(ctx context.Context, event *models.CatalogUpdatedEvent) error {
	return ep.producer.PublishEvent(ctx, "catalog-"+event.SheetID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onCatalogUpdated func(context.Context, *models.CatalogUpdatedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnCatalogUpdated registers a handler for CatalogUpdated events
func (eh *EventHandler) OnCatalogUpdated(handler func(context.Context, *models.CatalogUpdatedEvent) error) {
	eh.onCatalogUpdated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeCatalogUpdated:
		if eh.onCatalogUpdated != nil {
			var event models.CatalogUpdatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CatalogUpdated event: %w", err)
			}
			return eh.onCatalogUpdated(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
