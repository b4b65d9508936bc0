// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"sync"

	"github.com/google/uuid"
)

// allowedMetadataNames is the fixed set of client metadata property
// names that may be mirrored into the shared context. Anything else a
// collaborator reports is dropped, so arbitrary field names can never
// leak into telemetry.
var allowedMetadataNames = map[string]struct{}{
	"ClientId":          {},
	"UserAgent":         {},
	"ClientCountry":     {},
	"ClientLanguage":    {},
	"ClientHost":        {},
	"ClientOrigin":      {},
	"ClientFirstOrigin": {},
	"ClientIsNew":       {},
}

// Context is the shared key/value store merged into every record,
// plus the immutable per-process session identity. It is an explicit
// object — constructed once and handed to every consumer — rather
// than a package-level singleton, so tests get isolated instances.
//
// Writes are last-write-wins with no ordering defined between racing
// writers of the same key beyond "one of them lands." Entries are
// never deleted.
//
// Thread-safe: all methods may be called concurrently.
type Context struct {
	sessionID string

	mu     sync.Mutex
	shared map[string]string
}

// NewContext creates a Context with a freshly generated session
// identity.
func NewContext() *Context {
	return &Context{
		sessionID: uuid.NewString(),
		shared:    make(map[string]string),
	}
}

// SessionID returns the session identity generated at construction.
// Immutable for the Context's lifetime.
func (c *Context) SessionID() string { return c.sessionID }

// SetShared overwrites the current value for key.
func (c *Context) SetShared(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shared[key] = value
}

// SetSharedIfAllowed mirrors a client metadata property into the
// shared context only when its name is on the fixed allow-list.
// Returns whether the write happened.
func (c *Context) SetSharedIfAllowed(name, value string) bool {
	if _, ok := allowedMetadataNames[name]; !ok {
		return false
	}
	c.SetShared(name, value)
	return true
}

// Snapshot returns a point-in-time copy of the shared map. The copy
// is the caller's to keep; later SetShared calls do not affect it.
func (c *Context) Snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]string, len(c.shared))
	for key, value := range c.shared {
		snapshot[key] = value
	}
	return snapshot
}
