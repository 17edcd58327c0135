package events

import (
	"sync"
	"time"

	"github.com/mdelaney/catsync/internal/models"
)

// Type identifies a domain event.
type Type string

const (
	CategoryCreated   Type = "category:created"
	CategoryUpdated   Type = "category:updated"
	CategoryDeleted   Type = "category:deleted"
	CategoryAssigned  Type = "category:assigned"
	CategoryRemoved   Type = "category:removed"
	MigrationComplete Type = "category:migration:complete"
	RegistryReset     Type = "category:reset"
)

// Event carries the entities affected by a mutation. Consumers treat
// these as the only change notification; the registry is polled for
// reads only.
type Event struct {
	Type Type
	Time time.Time

	// Created, updated or deleted category. For updates Previous
	// holds the prior values so consumers can reconcile derived
	// state such as color legends.
	Category *models.Category
	Previous *models.Category

	// Assignment details.
	FileID      string
	CategoryIDs []string

	// Migration summary.
	Migrated int
}

// Bus fan-outs domain events to subscribers.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	logger *Logger
}

// NewBus creates an event bus.
func NewBus(logger *Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger.WithField("component", "event_bus"),
	}
}

// Subscribe registers a consumer. The returned cancel func must be
// called to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}

	return ch, cancel
}

// Publish delivers an event to all subscribers. Delivery never
// blocks the write path; a subscriber that stops consuming loses
// events rather than stalling mutations.
func (b *Bus) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.logger.WithField("type", string(evt.Type)).Warn("Dropping event for slow subscriber")
		}
	}
}
