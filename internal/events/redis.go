package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// channelPrefix namespaces the Redis pub/sub channels used by the bus.
const channelPrefix = "dockqueue.events."

// RedisBus fans events out through Redis pub/sub so every instance of the
// service delivers queue-changed notifications to its local subscribers.
// Local delivery goes through an embedded MemoryBus fed by the Redis reader.
type RedisBus struct {
	client *redis.Client
	local  *MemoryBus

	mu       sync.Mutex
	channels map[int64]*redis.PubSub // one subscription per warehouse

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBus connects to Redis and returns a distributed bus. The connection
// is verified with a ping before use.
func NewRedisBus(addr, password string, db int) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client:   client,
		local:    NewMemoryBus(),
		channels: make(map[int64]*redis.PubSub),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Publish serializes the event and publishes it to the warehouse's channel.
// Local subscribers receive it through the Redis round trip, which keeps the
// delivery order identical on every instance.
func (b *RedisBus) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("events: failed to marshal event: %v", err)
		return
	}
	channel := fmt.Sprintf("%s%d", channelPrefix, ev.WarehouseID)
	if err := b.client.Publish(b.ctx, channel, payload).Err(); err != nil {
		log.Printf("events: redis publish failed, delivering locally only: %v", err)
		b.local.Publish(ev)
	}
}

// Subscribe registers a local subscriber and ensures a Redis subscription
// exists for the warehouse.
func (b *RedisBus) Subscribe(warehouseID int64) Subscriber {
	b.mu.Lock()
	if _, ok := b.channels[warehouseID]; !ok {
		channel := fmt.Sprintf("%s%d", channelPrefix, warehouseID)
		pubsub := b.client.Subscribe(b.ctx, channel)
		b.channels[warehouseID] = pubsub
		b.wg.Add(1)
		go b.pump(pubsub)
	}
	b.mu.Unlock()
	return b.local.Subscribe(warehouseID)
}

// Unsubscribe removes a local subscriber. The Redis channel subscription
// stays open until Close.
func (b *RedisBus) Unsubscribe(warehouseID int64, sub Subscriber) {
	b.local.Unsubscribe(warehouseID, sub)
}

// pump forwards messages from one Redis subscription to local subscribers.
func (b *RedisBus) pump(pubsub *redis.PubSub) {
	defer b.wg.Done()
	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("events: dropping malformed event payload: %v", err)
				continue
			}
			b.local.Publish(ev)
		}
	}
}

// Close stops the Redis readers and releases local subscribers.
func (b *RedisBus) Close() error {
	b.cancel()
	b.mu.Lock()
	for id, pubsub := range b.channels {
		_ = pubsub.Close()
		delete(b.channels, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
	_ = b.local.Close()
	return b.client.Close()
}
