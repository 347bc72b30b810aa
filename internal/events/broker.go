// Package events fans verification lifecycle events out to Server-Sent
// Events subscribers.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 64

const (
	TypeRunStarted  = "run.started"
	TypeRunFinished = "run.finished"
)

// Event is one SSE message. Data is a JSON document.
type Event struct {
	Type string
	Data []byte
}

// Broker delivers published events to every current subscriber.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	closed      bool
	nextID      atomic.Int64
	dropped     atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a client and returns its ID and a buffered channel.
// After Close the channel comes back already closed.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Close ends every subscription so open streams return. Publish becomes a
// no-op.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish marshals v and delivers it without blocking. A subscriber whose
// buffer is full misses the event.
func (b *Broker) Publish(eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	evt := Event{Type: eventType, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers returns the number of connected clients.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped counts deliveries skipped because a subscriber was behind.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
