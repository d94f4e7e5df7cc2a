package events

import (
	"sync"
	"time"
)

// Type enumerates event categories delivered to warehouse subscribers.
type Type string

const (
	TypeQueueChanged Type = "queue_changed"
	TypeAlert        Type = "alert"
)

// Alert kinds carried by TypeAlert events.
const (
	AlertOverdue   = "overdue"
	AlertSLABreach = "sla_breach"
	AlertIntegrity = "integrity"
)

// Event is a notification about one warehouse. A queue_changed event carries
// no diff; consumers refetch the queue for the warehouse.
type Event struct {
	Type        Type      `json:"type"`
	WarehouseID int64     `json:"warehouse_id"`
	DockID      int64     `json:"dock_id,omitempty"`
	BookingID   int64     `json:"booking_id,omitempty"`
	AlertKind   string    `json:"alert_kind,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}

// Subscriber receives events for one warehouse.
type Subscriber chan Event

// Bus is the fan-out boundary. Delivery to a slow subscriber is lossy
// (at-most-once); ordering of delivered events follows publish order.
type Bus interface {
	Publish(ev Event)
	Subscribe(warehouseID int64) Subscriber
	Unsubscribe(warehouseID int64, sub Subscriber)
	Close() error
}

// MemoryBus implements a simple in-process pubsub keyed by warehouse.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[int64][]Subscriber
}

// NewMemoryBus creates an in-process event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int64][]Subscriber)}
}

// Subscribe registers a subscriber for the warehouse.
func (b *MemoryBus) Subscribe(warehouseID int64) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[warehouseID] = append(b.subs[warehouseID], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends the event to the warehouse's subscribers. The read lock is
// held across the sends so Unsubscribe cannot close a channel with a send in
// flight; sends are non-blocking, so the lock is never held up by a slow
// subscriber.
func (b *MemoryBus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[ev.WarehouseID] {
		select {
		case sub <- ev:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *MemoryBus) Unsubscribe(warehouseID int64, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[warehouseID]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[warehouseID] = subs
	close(sub)
}

// Close releases all subscribers.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, subs := range b.subs {
		for _, sub := range subs {
			close(sub)
		}
		delete(b.subs, id)
	}
	return nil
}
