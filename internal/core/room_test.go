package core

import (
	"testing"
)

func newTestRouter(clients ...*Client) *Router {
	r := NewRouter(nil, nopLogger())
	for _, c := range clients {
		r.Add(c)
	}
	return r
}

func TestRouterMulticastOnlyReachesMembers(t *testing.T) {
	a := NewClient("a", "alice", 4)
	b := NewClient("b", "bob", 4)
	c := NewClient("c", "carol", 4)
	r := newTestRouter(a, b, c)

	if !r.Join("a", "r1") || !r.Join("b", "r1") {
		t.Fatalf("join failed")
	}
	if r.Join("a", "r1") {
		t.Fatalf("second join must report no change")
	}
	if r.Join("ghost", "r1") {
		t.Fatalf("unknown connection must not join")
	}

	if n := r.Multicast("r1", Typing{Room: "r1"}, "a"); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if len(a.Events) != 0 || len(b.Events) != 1 || len(c.Events) != 0 {
		t.Fatalf("unexpected queue lengths: a=%d b=%d c=%d", len(a.Events), len(b.Events), len(c.Events))
	}
}

func TestRouterRemoveLeavesEveryRoom(t *testing.T) {
	a := NewClient("a", "alice", 4)
	r := newTestRouter(a)
	r.Join("a", "r1")
	r.Join("a", "r2")

	left := r.Remove(a)
	if len(left) != 2 {
		t.Fatalf("expected to leave 2 rooms, got %v", left)
	}
	if r.IsMember("a", "r1") || r.Members("r2") != 0 {
		t.Fatalf("membership survived remove")
	}
	if r.Unicast("a", Typing{}) {
		t.Fatalf("removed connection must not receive unicast")
	}
}

func TestRouterDropsForSlowConsumer(t *testing.T) {
	slow := NewClient("s", "slow", 1)
	r := newTestRouter(slow)
	r.Join("s", "r1")

	if n := r.Multicast("r1", Typing{Room: "r1"}, ""); n != 1 {
		t.Fatalf("expected first event queued")
	}
	if n := r.Multicast("r1", Typing{Room: "r1"}, ""); n != 0 {
		t.Fatalf("expected full queue to drop, got %d", n)
	}
}

func TestRouterLeave(t *testing.T) {
	a := NewClient("a", "alice", 4)
	r := newTestRouter(a)
	r.Join("a", "r1")

	if !r.Leave("a", "r1") {
		t.Fatalf("leave of joined room must succeed")
	}
	if r.Leave("a", "r1") {
		t.Fatalf("leave of unjoined room must report false")
	}
}
