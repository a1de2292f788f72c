package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced    = "ORDER_PLACED"
	EventTypeCatalogUpdated = "CATALOG_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published after the order sink accepted an order
type OrderPlacedEvent struct {
	BaseEvent
	OrderID   string          `json:"order_id"`
	SessionID string          `json:"session_id"`
	Total     decimal.Decimal `json:"total"`
	Items     []OrderItemData `json:"items"`
}

// CatalogUpdatedEvent is sent by the sheet maintainers when product rows change
type CatalogUpdatedEvent struct {
	BaseEvent
	SheetID string `json:"sheet_id,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
