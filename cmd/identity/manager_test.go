package identity

import "testing"

func TestManagerSetClearCurrent(t *testing.T) {
	t.Parallel()

	m := NewManager()

	if _, ok := m.Current(); ok {
		t.Fatal("fresh manager must not report a principal")
	}

	m.Set(Principal{ID: "u1", Label: "Ada", Token: "tok-1"})
	p, ok := m.Current()
	if !ok || p.ID != "u1" || p.Token != "tok-1" {
		t.Fatalf("unexpected current: %+v ok=%v", p, ok)
	}

	m.Clear()
	if _, ok := m.Current(); ok {
		t.Fatal("cleared manager must not report a principal")
	}
}

func TestManagerSubscribeNotifiesAndCancelDetaches(t *testing.T) {
	t.Parallel()

	m := NewManager()

	var calls []bool
	sub := m.Subscribe(func(_ Principal, signedIn bool) {
		calls = append(calls, signedIn)
	})

	m.Set(Principal{ID: "u1", Token: "tok"})
	m.Clear()

	if len(calls) != 2 || calls[0] != true || calls[1] != false {
		t.Fatalf("unexpected notifications: %v", calls)
	}

	sub.Cancel()
	sub.Cancel() // idempotent

	m.Set(Principal{ID: "u2", Token: "tok2"})
	if len(calls) != 2 {
		t.Fatalf("listener fired after cancel: %v", calls)
	}
}

func TestTokenSourceTracksLiveToken(t *testing.T) {
	t.Parallel()

	m := NewManager()
	src := m.TokenSource()

	if got := src(); got != "" {
		t.Fatalf("signed-out token source returned %q", got)
	}

	m.Set(Principal{ID: "u1", Token: "tok-a"})
	if got := src(); got != "tok-a" {
		t.Fatalf("got %q want tok-a", got)
	}

	m.Set(Principal{ID: "u1", Token: "tok-b"})
	if got := src(); got != "tok-b" {
		t.Fatalf("got %q want tok-b after refresh", got)
	}

	m.Clear()
	if got := src(); got != "" {
		t.Fatalf("got %q want empty after clear", got)
	}
}

func TestPrincipalValid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		p    Principal
		want bool
	}{
		{Principal{ID: "u1", Token: "t"}, true},
		{Principal{ID: "u1"}, false},
		{Principal{Token: "t"}, false},
		{Principal{ID: "  ", Token: "t"}, false},
		{Principal{}, false},
	}

	for _, tc := range cases {
		if got := tc.p.Valid(); got != tc.want {
			t.Fatalf("Valid(%+v)=%v want=%v", tc.p, got, tc.want)
		}
	}
}
