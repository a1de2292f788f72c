package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Invalidator drops cached catalog data
type Invalidator interface {
	Invalidate()
}

// CatalogWorker refreshes the product cache when the sheet changes
type CatalogWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	cache        Invalidator
	sheetID      string
	logger       *zap.Logger
}

// NewCatalogWorker creates a new catalog worker. Events naming another sheet are ignored.
func NewCatalogWorker(consumer *broker.Consumer, cache Invalidator, sheetID string) *CatalogWorker {
	w := &CatalogWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		cache:        cache,
		sheetID:      sheetID,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnCatalogUpdated(w.HandleCatalogUpdated)
	return w
}

// HandleCatalogUpdated invalidates the cache so the next read refetches
func (w *CatalogWorker) HandleCatalogUpdated(ctx context.Context, event *models.CatalogUpdatedEvent) error {
	if event.SheetID != "" && w.sheetID != "" && event.SheetID != w.sheetID {
		return nil
	}
	w.cache.Invalidate()
	w.logger.Info("Catalog cache invalidated",
		zap.String("event_id", event.EventID),
		zap.String("sheet_id", event.SheetID))
	return nil
}

// Start starts the worker
func (w *CatalogWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting catalog worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CatalogWorker) Stop() error {
	w.logger.Info("Stopping catalog worker")
	return w.consumer.Close()
}
