// Package hooks dispatches synchronizer events to subscribers such as the
// gateway and the CLI.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/duet/internal/logging"
)

// Event names.
const (
	// EventConversationUpdated fires when a conversation's messages or header change.
	EventConversationUpdated = "conversation.updated"
	// EventMessagesLoaded fires when a load publishes a fresh message sequence.
	EventMessagesLoaded = "messages.loaded"
	// EventMessageStatus fires when a sent message becomes confirmed or failed.
	EventMessageStatus = "message.status"
	// EventNotify carries user-facing failure notifications.
	EventNotify = "notify"
	// EventTwinDrafted fires when the AI twin produced a reply.
	EventTwinDrafted  = "twin.drafted"
	EventGatewayStart = "gateway.start"
	EventGatewayStop  = "gateway.stop"
)

// SyncEvents are the events pushed to connected clients.
var SyncEvents = []string{
	EventConversationUpdated,
	EventMessagesLoaded,
	EventMessageStatus,
	EventNotify,
	EventTwinDrafted,
}

// AllEvents lists all known event names.
var AllEvents = append(append([]string{}, SyncEvents...), EventGatewayStart, EventGatewayStop)

// Payload carries event data to handlers.
type Payload struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Handler handles an event. Returning an error logs the failure but does
// not stop other handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager manages handler registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
// The name identifies the handler for Off and for logging.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// OnEach registers handler for every listed event.
func (m *Manager) OnEach(events []string, name string, handler Handler) {
	for _, e := range events {
		m.On(e, name, handler)
	}
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	m.handlers[event] = filtered
}

// OffEach removes the named handler from every listed event.
func (m *Manager) OffEach(events []string, name string) {
	for _, e := range events {
		m.Off(e, name)
	}
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]namedHandler(nil), m.handlers[event]...)
}

// Emit dispatches an event to all registered handlers synchronously, in
// registration order.
func (m *Manager) Emit(ctx context.Context, event string, data any) {
	payload := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.call(ctx, h, payload)
	}
}

// EmitAsync dispatches an event to all registered handlers concurrently and
// returns immediately.
func (m *Manager) EmitAsync(ctx context.Context, event string, data any) {
	payload := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		go m.call(ctx, h, payload)
	}
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("event", p.Event).Str("handler", h.name).
				Str("panic", fmt.Sprint(r)).Msg("hook handler panicked")
		}
	}()
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", h.name).Msg("hook handler error")
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events that have at least one handler registered.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	return events
}
