// Package event provides the in-process domain event bus.
package event

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/invoiceflow/backend/internal/domain/shared"
	"github.com/invoiceflow/backend/internal/infrastructure/telemetry"
)

// InMemoryEventBus dispatches domain events synchronously to subscribed handlers.
// Handler failures are logged and never reach the publisher, so a metrics or
// notification problem cannot fail an invoice save.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
}

// Publish delivers each event to every handler registered for its type
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, event := range events {
		for _, handler := range b.registry.GetHandlers(event.EventType()) {
			start := time.Now()
			if err := b.dispatch(ctx, handler, event); err != nil {
				b.logger.Error("handler failed to process event",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.String("aggregate_id", event.AggregateID().String()),
					zap.Error(err),
				)
				continue
			}
			b.logger.Debug("event handled",
				zap.String("event_type", event.EventType()),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
	}
	return nil
}

// Subscribe registers a handler. Without explicit types the handler's own
// EventTypes are used; an empty list subscribes to every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// dispatch runs one handler inside a span and turns a panic into an error
func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "event."+event.EventType(),
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, event.AggregateID().String()),
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
		telemetry.RecordError(span, err)
		span.End()
	}()

	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
