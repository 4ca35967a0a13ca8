package invoice

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/invoiceflow/backend/internal/domain/invoice"
	"github.com/invoiceflow/backend/internal/domain/shared"
)

// OutcomeRecorder records invoice processing outcomes, typically as metrics
type OutcomeRecorder interface {
	RecordParsed(ctx context.Context, parser string, lineItems int)
	RecordFailed(ctx context.Context, timedOut bool)
	RecordVendorBill(ctx context.Context)
}

// OutcomeHandler handles invoice lifecycle events and records their outcome
type OutcomeHandler struct {
	recorder OutcomeRecorder
	logger   *zap.Logger
}

// NewOutcomeHandler creates a new handler for invoice lifecycle events
func NewOutcomeHandler(recorder OutcomeRecorder, logger *zap.Logger) *OutcomeHandler {
	return &OutcomeHandler{
		recorder: recorder,
		logger:   logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *OutcomeHandler) EventTypes() []string {
	return []string{
		invoice.EventTypeInvoiceParsed,
		invoice.EventTypeInvoiceFailed,
		invoice.EventTypeVendorBillCreated,
	}
}

// Handle records the outcome carried by an invoice event
func (h *OutcomeHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *invoice.InvoiceParsedEvent:
		h.logger.Debug("invoice parsed event",
			zap.String("invoice_id", e.AggregateID().String()),
			zap.String("parser", e.Parser),
			zap.Int("line_items", e.LineItemCount),
		)
		h.recorder.RecordParsed(ctx, e.Parser, e.LineItemCount)
	case *invoice.InvoiceFailedEvent:
		h.logger.Debug("invoice failed event",
			zap.String("invoice_id", e.AggregateID().String()),
			zap.Bool("timed_out", e.TimedOut),
		)
		h.recorder.RecordFailed(ctx, e.TimedOut)
	case *invoice.VendorBillCreatedEvent:
		h.logger.Debug("vendor bill created event",
			zap.String("invoice_id", e.AggregateID().String()),
			zap.String("vendor_bill_id", e.VendorBillID),
		)
		h.recorder.RecordVendorBill(ctx)
	default:
		h.logger.Error("unexpected event type",
			zap.Strings("expected", h.EventTypes()),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
	return nil
}
