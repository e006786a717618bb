// Package presence merges per-connection ephemeral descriptors into a
// deduplicated live participant list.
//
// The mapping from connection id to descriptor is exclusively owned and
// mutated by the Aggregator; there is no external writer. Entries are a pure
// function of currently-open connections and are never reconciled against
// membership rows.
package presence

import (
	"sync"

	v1 "loom/shared/contracts/collab/v1"
)

// Participant is one live entry in the exposed participant list.
type Participant struct {
	ConnID string
	Name   string
	Color  string
}

// Aggregator maintains connection id -> last-published descriptor.
type Aggregator struct {
	mu      sync.Mutex
	entries map[string]v1.Descriptor
}

// NewAggregator constructs an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{entries: make(map[string]v1.Descriptor)}
}

// Apply records or replaces the descriptor for a connection.
// Descriptors with an empty name are recorded but filtered from Participants
// until the peer publishes a usable one.
func (a *Aggregator) Apply(connID string, d v1.Descriptor) {
	if connID == "" {
		return
	}
	a.mu.Lock()
	a.entries[connID] = d
	a.mu.Unlock()
}

// ApplyState replaces the whole mapping with a snapshot (initial sync).
func (a *Aggregator) ApplyState(entries map[string]v1.Descriptor) {
	a.mu.Lock()
	a.entries = make(map[string]v1.Descriptor, len(entries))
	for id, d := range entries {
		if id == "" {
			continue
		}
		a.entries[id] = d
	}
	a.mu.Unlock()
}

// Remove drops a connection's entry. Called when the underlying connection
// closes, whatever the reason; a deliberate leave and a transport drop are
// not distinguished.
func (a *Aggregator) Remove(connID string) {
	a.mu.Lock()
	delete(a.entries, connID)
	a.mu.Unlock()
}

// Clear drops all entries (session teardown).
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.entries = make(map[string]v1.Descriptor)
	a.mu.Unlock()
}

// Participants recomputes the exposed list: every connection that has
// published a non-empty descriptor, in arbitrary order.
func (a *Aggregator) Participants() []Participant {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Participant, 0, len(a.entries))
	for id, d := range a.entries {
		if d.Name == "" {
			continue
		}
		out = append(out, Participant{ConnID: id, Name: d.Name, Color: d.Color})
	}
	return out
}

// Descriptor builds the local participant's descriptor for publishing.
func Descriptor(name string) v1.Descriptor {
	return v1.Descriptor{Name: name, Color: ColorFor(name)}
}
