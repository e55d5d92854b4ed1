// Package dashboard tracks lineage runs as they progress and serves them as
// JSON and server-sent events.
package dashboard

import "github.com/rs/zerolog"

// Dashboard ties together all dashboard components.
type Dashboard struct {
	Server  *Server
	Store   *Store
	Hub     *Hub
	Emitter *Emitter
}

// New creates a fully wired dashboard.
func New(logger zerolog.Logger) *Dashboard {
	store := NewStore()
	hub := NewHub()
	return &Dashboard{
		Server:  NewServer(store, hub, logger),
		Store:   store,
		Hub:     hub,
		Emitter: NewEmitter(store, hub),
	}
}
