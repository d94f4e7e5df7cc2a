package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusFanOutPerWarehouse(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	subA := bus.Subscribe(1)
	subB := bus.Subscribe(1)
	subOther := bus.Subscribe(2)

	bus.Publish(Event{Type: TypeQueueChanged, WarehouseID: 1, DockID: 3, At: time.Now()})

	for _, sub := range []Subscriber{subA, subB} {
		select {
		case ev := <-sub:
			assert.Equal(t, TypeQueueChanged, ev.Type)
			assert.Equal(t, int64(3), ev.DockID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}

	select {
	case ev := <-subOther:
		t.Fatalf("warehouse 2 subscriber received foreign event: %+v", ev)
	default:
	}
}

func TestMemoryBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	sub := bus.Subscribe(1)
	for i := 0; i < 100; i++ {
		bus.Publish(Event{Type: TypeAlert, WarehouseID: 1, BookingID: int64(i)})
	}

	// The channel buffer bounds delivery; the publisher never blocked.
	received := 0
	for {
		select {
		case <-sub:
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, cap(sub), received)
}

func TestMemoryBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	sub := bus.Subscribe(1)
	bus.Unsubscribe(1, sub)

	_, ok := <-sub
	require.False(t, ok, "unsubscribed channel must be closed")

	// Publishing afterwards must not panic.
	bus.Publish(Event{Type: TypeQueueChanged, WarehouseID: 1})
}

// Publishes race subscriber churn the way SSE disconnects race queue
// mutations; Unsubscribe closes the channel, so a send outside the lock
// would panic.
func TestMemoryBusPublishDuringUnsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			bus.Publish(Event{Type: TypeQueueChanged, WarehouseID: 1})
		}
	}()

	for i := 0; i < 1000; i++ {
		sub := bus.Subscribe(1)
		bus.Unsubscribe(1, sub)
	}

	close(done)
	wg.Wait()
}
