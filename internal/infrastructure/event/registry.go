package event

import (
	"slices"
	"sync"

	"github.com/invoiceflow/backend/internal/domain/shared"
)

// allEvents keys handlers subscribed without an event type
const allEvents = "*"

// HandlerRegistry maps invoice event types to subscribed handlers
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string][]shared.EventHandler)}
}

// Register subscribes handler to eventTypes, or to every event when none are given
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = []string{allEvents}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range eventTypes {
		r.handlers[t] = append(r.handlers[t], handler)
	}
}

// GetHandlers returns the handlers for eventType followed by the catch-all handlers
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Concat(r.handlers[eventType], r.handlers[allEvents])
}
