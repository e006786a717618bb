package realtime

import (
	"fmt"
	"sync"
	"testing"

	v1 "loom/shared/contracts/collab/v1"
)

func TestHubJoinRegistersAtomically(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger())
	c1 := NewClient("u1", "c1", 8)
	r1 := hub.Join("r1", c1)

	// The returned handle is the hub's handle and already holds the member,
	// so a release attempt right after Join must be a no-op.
	hub.ReleaseIfEmpty("r1")
	if hub.GetOrCreateRoom("r1") != r1 {
		t.Fatal("occupied room was released")
	}

	// Last member departs, handle is dropped, and the next two joiners must
	// land in one and the same fresh handle.
	r1.Leave("c1")
	hub.ReleaseIfEmpty("r1")

	c2 := NewClient("u2", "c2", 8)
	c3 := NewClient("u3", "c3", 8)
	r2 := hub.Join("r1", c2)
	r3 := hub.Join("r1", c3)
	if r2 != r3 {
		t.Fatal("joiners for one room id got different handles")
	}
	if hub.GetOrCreateRoom("r1") != r2 {
		t.Fatal("hub handle diverged from the joined room")
	}

	r2.Broadcast(testEnvelope(t, v1.TypePeerGone))
	for _, c := range []*Client{c2, c3} {
		select {
		case <-c.Send:
		default:
			t.Fatalf("client %s missed the broadcast on the shared handle", c.ConnID)
		}
	}
}

func TestHubJoinReleaseChurn(t *testing.T) {
	t.Parallel()

	// Concurrent join/leave/release cycles on one room id: a handle returned
	// by Join still holds the joiner as a member, so the hub must keep
	// pointing at it until that member leaves.
	hub := NewHub(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				connID := fmt.Sprintf("c%d-%d", i, n)
				c := NewClient("u", connID, 4)
				r := hub.Join("r1", c)
				if hub.GetOrCreateRoom("r1") != r {
					t.Errorf("joiner %s stranded in a released handle", connID)
				}
				r.Leave(connID)
				hub.ReleaseIfEmpty("r1")
			}
		}(i)
	}
	wg.Wait()
}
