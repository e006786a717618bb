package presence

import (
	"testing"

	v1 "loom/shared/contracts/collab/v1"
)

func participantNames(list []Participant) map[string]string {
	out := make(map[string]string, len(list))
	for _, p := range list {
		out[p.ConnID] = p.Name
	}
	return out
}

func TestAggregatorApplyAndRemove(t *testing.T) {
	t.Parallel()

	a := NewAggregator()

	a.Apply("c1", v1.Descriptor{Name: "Ada", Color: ColorFor("Ada")})
	a.Apply("c2", v1.Descriptor{Name: "Grace", Color: ColorFor("Grace")})

	got := participantNames(a.Participants())
	if len(got) != 2 || got["c1"] != "Ada" || got["c2"] != "Grace" {
		t.Fatalf("unexpected participants: %v", got)
	}

	// Re-publishing replaces, never duplicates.
	a.Apply("c1", v1.Descriptor{Name: "Ada L", Color: ColorFor("Ada L")})
	got = participantNames(a.Participants())
	if len(got) != 2 || got["c1"] != "Ada L" {
		t.Fatalf("unexpected participants after republish: %v", got)
	}

	a.Remove("c1")
	got = participantNames(a.Participants())
	if len(got) != 1 || got["c2"] != "Grace" {
		t.Fatalf("unexpected participants after remove: %v", got)
	}
}

func TestAggregatorFiltersUnpublishedDescriptors(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.Apply("c1", v1.Descriptor{}) // connected, nothing published yet
	a.Apply("c2", v1.Descriptor{Name: "Ada", Color: ColorFor("Ada")})

	list := a.Participants()
	if len(list) != 1 || list[0].ConnID != "c2" {
		t.Fatalf("unexpected participants: %v", list)
	}
}

func TestAggregatorApplyState(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.Apply("stale", v1.Descriptor{Name: "Old", Color: ColorFor("Old")})

	a.ApplyState(map[string]v1.Descriptor{
		"c1": {Name: "Ada", Color: ColorFor("Ada")},
		"c2": {Name: "Grace", Color: ColorFor("Grace")},
	})

	got := participantNames(a.Participants())
	if len(got) != 2 {
		t.Fatalf("snapshot did not replace mapping: %v", got)
	}
	if _, ok := got["stale"]; ok {
		t.Fatal("stale entry survived ApplyState")
	}
}

func TestAggregatorClear(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.Apply("c1", v1.Descriptor{Name: "Ada", Color: ColorFor("Ada")})
	a.Clear()

	if list := a.Participants(); len(list) != 0 {
		t.Fatalf("participants after clear: %v", list)
	}
}

func TestDescriptorColorConsistentAcrossInstances(t *testing.T) {
	t.Parallel()

	d1 := Descriptor("Ada")
	d2 := Descriptor("Ada")
	if d1 != d2 {
		t.Fatalf("descriptor not deterministic: %+v vs %+v", d1, d2)
	}

	a, b := NewAggregator(), NewAggregator()
	a.Apply("c1", Descriptor("Ada"))
	b.Apply("c9", Descriptor("Ada"))
	if a.Participants()[0].Color != b.Participants()[0].Color {
		t.Fatal("color differs across aggregator instances")
	}
}
