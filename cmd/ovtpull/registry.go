package main

import (
	"sync"

	"github.com/google/uuid"
)

// registry is a toy stand-in for an application/stream lifecycle manager.
// It exists only so this demo has somewhere to hang a stable per-session
// identifier; a real deployment's provider/application registry is
// explicitly out of scope for the ovt package (spec's Non-goals).
type registry struct {
	mu      sync.Mutex
	byName  map[string]uuid.UUID
}

func newRegistry() *registry {
	return &registry{byName: make(map[string]uuid.UUID)}
}

// issue assigns a stable session handle for name, generating one on first
// use.
func (r *registry) issue(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		return id
	}
	id := uuid.New()
	r.byName[name] = id
	return id
}
