// Package urlstate mirrors the active room into the externally visible
// address so sessions are shareable and survive a reload, and consumes
// one-shot invite parameters carried in that address.
package urlstate

import (
	"net/url"
	"sync"
)

// Address is the externally visible address of the embedding shell.
// Replace must not create a new navigable history entry.
type Address interface {
	Current() (*url.URL, error)
	Replace(u *url.URL) error
}

// MemoryAddress is an in-process Address for embedding shells and tests.
type MemoryAddress struct {
	mu  sync.Mutex
	cur *url.URL
}

// NewMemoryAddress parses raw as the initial address.
func NewMemoryAddress(raw string) (*MemoryAddress, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &MemoryAddress{cur: u}, nil
}

// Current returns a copy of the address; mutating it does not write back.
func (a *MemoryAddress) Current() (*url.URL, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *a.cur
	return &cp, nil
}

func (a *MemoryAddress) Replace(u *url.URL) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *u
	a.cur = &cp
	return nil
}

// String renders the current address, for assertions and logs.
func (a *MemoryAddress) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur.String()
}
