// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"sync"
	"testing"
)

func TestSessionIDStableAndUniquePerContext(t *testing.T) {
	first := NewContext()
	second := NewContext()

	if first.SessionID() == "" {
		t.Fatal("expected non-empty session id")
	}
	if first.SessionID() != first.SessionID() {
		t.Fatal("session id changed between reads")
	}
	if first.SessionID() == second.SessionID() {
		t.Fatal("two contexts share a session id")
	}
}

func TestSetSharedLastWriteWins(t *testing.T) {
	context := NewContext()

	context.SetShared("ClientHost", "first")
	context.SetShared("ClientHost", "second")

	if got := context.Snapshot()["ClientHost"]; got != "second" {
		t.Fatalf("expected last write, got %q", got)
	}
}

func TestSnapshotIsIsolatedCopy(t *testing.T) {
	context := NewContext()
	context.SetShared("key", "before")

	snapshot := context.Snapshot()
	context.SetShared("key", "after")

	if snapshot["key"] != "before" {
		t.Fatalf("snapshot mutated by later write: %q", snapshot["key"])
	}

	snapshot["injected"] = "x"
	if _, ok := context.Snapshot()["injected"]; ok {
		t.Fatal("writing to a snapshot leaked into the context")
	}
}

func TestSetSharedConcurrentDisjointKeys(t *testing.T) {
	context := NewContext()

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			context.SetShared(fmt.Sprintf("key-%d", n), fmt.Sprintf("value-%d", n))
		}(i)
	}
	wg.Wait()

	snapshot := context.Snapshot()
	if len(snapshot) != writers {
		t.Fatalf("expected %d keys, got %d", writers, len(snapshot))
	}
	for i := 0; i < writers; i++ {
		key := fmt.Sprintf("key-%d", i)
		want := fmt.Sprintf("value-%d", i)
		if snapshot[key] != want {
			t.Fatalf("%s: expected %q, got %q", key, want, snapshot[key])
		}
	}
}

func TestSetSharedConcurrentSameKeyOneWriteLands(t *testing.T) {
	context := NewContext()

	const writers = 32
	written := make(map[string]bool, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		value := fmt.Sprintf("value-%d", i)
		written[value] = true
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			context.SetShared("contested", v)
		}(value)
	}
	wg.Wait()

	// Exactly one of the candidate values, intact — no merged
	// garbage.
	final := context.Snapshot()["contested"]
	if !written[final] {
		t.Fatalf("final value %q is not one of the written values", final)
	}
}

func TestSetSharedIfAllowedAcceptsListedNames(t *testing.T) {
	context := NewContext()

	for _, name := range []string{
		"ClientId", "UserAgent", "ClientCountry", "ClientLanguage",
		"ClientHost", "ClientOrigin", "ClientFirstOrigin", "ClientIsNew",
	} {
		if !context.SetSharedIfAllowed(name, "v") {
			t.Fatalf("%s: expected allow-listed write to land", name)
		}
	}

	if len(context.Snapshot()) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(context.Snapshot()))
	}
}

func TestSetSharedIfAllowedDropsUnlistedNames(t *testing.T) {
	context := NewContext()

	if context.SetSharedIfAllowed("NotAllowedField", "v") {
		t.Fatal("expected unlisted name to be dropped")
	}
	if context.SetSharedIfAllowed("clientid", "v") {
		t.Fatal("allow-list match must be exact, not case-folded")
	}
	if len(context.Snapshot()) != 0 {
		t.Fatalf("shared context changed: %v", context.Snapshot())
	}
}
