// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"sync"
	"sync/atomic"
)

// Handler consumes one published payload. Handlers run synchronously
// on the publisher's goroutine, so payloads from a single publisher
// arrive in publish order. A handler must tolerate concurrent
// invocation when multiple goroutines publish to its topic.
type Handler func(payload any)

// Bus is an in-process publish/subscribe registry. Subscriptions are
// keyed by topic name; Publish fans a payload out to every handler
// registered for the topic, in subscription order.
//
// Delivery is at-least-once per registered handler per occurrence,
// with no persistence or replay: a payload published before Subscribe
// returns is never delivered to that subscription.
//
// Thread-safe: all methods may be called concurrently.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*Subscription
	recovered     atomic.Uint64
}

// Subscription is a handle to one registered handler. Cancel detaches
// it deterministically; after Cancel returns, no new dispatches start
// for this subscription (a dispatch already in flight on another
// goroutine may still complete).
type Subscription struct {
	bus       *Bus
	topic     string
	handler   Handler
	cancelled atomic.Bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscriptions: make(map[string][]*Subscription)}
}

// Subscribe registers handler for the given topic and returns its
// cancellation handle. Panics on a nil handler (programming error,
// not runtime data).
func (b *Bus) Subscribe(topic string, handler Handler) *Subscription {
	if handler == nil {
		panic("bus: Subscribe called with nil handler")
	}

	subscription := &Subscription{bus: b, topic: topic, handler: handler}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[topic] = append(b.subscriptions[topic], subscription)
	return subscription
}

// Publish delivers payload to every handler subscribed to topic,
// synchronously on the calling goroutine, in subscription order.
// Publishing to a topic with no subscribers is a no-op.
//
// A panicking handler is recovered and counted; it does not poison
// the remaining handlers or the publisher.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	registered := b.subscriptions[topic]
	// Snapshot under the read lock so dispatch runs without it. A
	// subscription cancelled after the snapshot is still skipped via
	// its flag.
	snapshot := make([]*Subscription, len(registered))
	copy(snapshot, registered)
	b.mu.RUnlock()

	for _, subscription := range snapshot {
		if subscription.cancelled.Load() {
			continue
		}
		b.dispatch(subscription.handler, payload)
	}
}

// dispatch invokes one handler with panic isolation.
func (b *Bus) dispatch(handler Handler, payload any) {
	defer func() {
		if recover() != nil {
			b.recovered.Add(1)
		}
	}()
	handler(payload)
}

// Recovered returns the number of handler panics the bus has absorbed
// since creation.
func (b *Bus) Recovered() uint64 {
	return b.recovered.Load()
}

// Cancel detaches the subscription. Idempotent.
func (s *Subscription) Cancel() {
	if s == nil || !s.cancelled.CompareAndSwap(false, true) {
		return
	}

	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	registered := b.subscriptions[s.topic]
	for i, subscription := range registered {
		if subscription == s {
			b.subscriptions[s.topic] = append(registered[:i:i], registered[i+1:]...)
			break
		}
	}
}
