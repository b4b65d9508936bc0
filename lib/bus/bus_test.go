// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"sync"
	"testing"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()

	var received []any
	b.Subscribe("compile", func(payload any) {
		received = append(received, payload)
	})

	b.Publish("compile", "first")
	b.Publish("compile", "second")

	if len(received) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(received))
	}
	if received[0] != "first" || received[1] != "second" {
		t.Fatalf("publish order not preserved: %v", received)
	}
}

func TestPublishNoSubscribersIsNoOp(t *testing.T) {
	b := New()
	// Must not panic or block.
	b.Publish("nobody-listening", 1)
}

func TestPublishTopicIsolation(t *testing.T) {
	b := New()

	var compiles, actions int
	b.Subscribe("compile", func(any) { compiles++ })
	b.Subscribe("action", func(any) { actions++ })

	b.Publish("compile", nil)
	b.Publish("compile", nil)
	b.Publish("action", nil)

	if compiles != 2 || actions != 1 {
		t.Fatalf("expected 2/1, got %d/%d", compiles, actions)
	}
}

func TestSubscriptionOrder(t *testing.T) {
	b := New()

	var order []int
	b.Subscribe("t", func(any) { order = append(order, 1) })
	b.Subscribe("t", func(any) { order = append(order, 2) })
	b.Subscribe("t", func(any) { order = append(order, 3) })

	b.Publish("t", nil)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected subscription order, got %v", order)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()

	var count int
	subscription := b.Subscribe("t", func(any) { count++ })

	b.Publish("t", nil)
	subscription.Cancel()
	b.Publish("t", nil)

	if count != 1 {
		t.Fatalf("expected 1 delivery, got %d", count)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b := New()
	subscription := b.Subscribe("t", func(any) {})
	subscription.Cancel()
	subscription.Cancel()

	var nilSubscription *Subscription
	nilSubscription.Cancel()
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	b := New()

	var after int
	b.Subscribe("t", func(any) { panic("handler bug") })
	b.Subscribe("t", func(any) { after++ })

	b.Publish("t", nil)

	if after != 1 {
		t.Fatal("panic in earlier handler suppressed later handler")
	}
	if b.Recovered() != 1 {
		t.Fatalf("expected 1 recovered panic, got %d", b.Recovered())
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := New()

	var mu sync.Mutex
	counts := make(map[int]int)

	for i := 0; i < 8; i++ {
		index := i
		b.Subscribe("t", func(any) {
			mu.Lock()
			counts[index]++
			mu.Unlock()
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish("t", j)
			}
		}()
	}
	wg.Wait()

	// Subscribers registered before any publish see all 400 events.
	mu.Lock()
	defer mu.Unlock()
	for index, count := range counts {
		if count != 8*50 {
			t.Fatalf("subscriber %d: expected %d deliveries, got %d", index, 8*50, count)
		}
	}
}
