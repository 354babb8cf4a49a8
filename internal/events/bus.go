package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// GetTypedData converts the Data map back into its typed payload.
// Returns nil for unknown types or malformed data.
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}
	data := newEventData(e.Type)
	if data == nil {
		return nil
	}
	if err := convertMapToStruct(e.Data, data); err != nil {
		return nil
	}
	return data
}

// Handler receives published events
type Handler func(*Event)

// Bus is an in-process publish/subscribe bus. Handlers run synchronously on the
// publishing goroutine in subscription order; slow consumers must buffer themselves.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType]map[uint64]Handler
	all      map[uint64]Handler
	order    []uint64
	log      zerolog.Logger
}

// NewBus creates an empty bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType]map[uint64]Handler),
		all:      make(map[uint64]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers handler for one event type and returns its unsubscribe func
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.register()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}
	b.handlers[eventType][id] = handler

	return b.unsubscriber(id, func() { delete(b.handlers[eventType], id) })
}

// SubscribeAll registers handler for every event type
func (b *Bus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.register()
	b.all[id] = handler

	return b.unsubscriber(id, func() { delete(b.all, id) })
}

func (b *Bus) register() uint64 {
	b.nextID++
	b.order = append(b.order, b.nextID)
	return b.nextID
}

func (b *Bus) unsubscriber(id uint64, remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			remove()
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit builds an event and publishes it
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) *Event {
	event := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Module:    module,
	}
	b.Publish(event)
	return event
}

// Publish delivers event to every matching handler
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	typed := b.handlers[event.Type]
	var targets []Handler
	for _, id := range b.order {
		if h, ok := typed[id]; ok {
			targets = append(targets, h)
		} else if h, ok := b.all[id]; ok {
			targets = append(targets, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		b.deliver(event, h)
	}
}

// SubscriberCount returns the number of live subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.all)
	for _, hs := range b.handlers {
		n += len(hs)
	}
	return n
}

func (b *Bus) deliver(event *Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	h(event)
}
