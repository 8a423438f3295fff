package dataflow

import (
	"testing"

	"github.com/crgp/crgp/internal/cascade"
	"github.com/crgp/crgp/internal/uid"
)

func TestShardApplyRetweetSeedsOriginalAuthorAtNegInfinity(t *testing.T) {
	s := NewShard(0)
	// A cascade's seed record is itself a self-retweet (author retweeting
	// their own tweet), so even the very first ApplyRetweet call for a
	// cascade only ever lazily seeds the author at NegInfinity.
	s.ApplyRetweet(1, uid.UID(42), 100, uid.UID(42), false)
	ts, ok := s.State.EntryTimestamp(1, uid.UID(42))
	if !ok || ts != cascade.NegInfinity {
		t.Fatalf("expected original author seeded at NegInfinity, got (%d, %v)", ts, ok)
	}
}

func TestShardApplyRetweetNonOwnerOnlyUpdatesState(t *testing.T) {
	s := NewShard(0)

	_, found := s.ApplyRetweet(1, uid.UID(7), 200, uid.UID(42), false)
	if found {
		t.Fatal("a non-owner shard must never resolve an influence edge")
	}
	if ts, ok := s.State.EntryTimestamp(1, uid.UID(7)); !ok || ts != 200 {
		t.Fatalf("state should still be updated on a non-owner shard, got (%d, %v)", ts, ok)
	}
}

func TestShardApplyRetweetOwnerResolvesEdge(t *testing.T) {
	s := NewShard(0)
	s.Friends.Insert(uid.UID(7), uid.NewSet(uid.UID(42)))

	edge, found := s.ApplyRetweet(1, uid.UID(7), 200, uid.UID(42), true)
	if !found {
		t.Fatal("expected the owner shard to resolve an edge")
	}
	if edge.Influencer != uid.UID(42) || edge.Influenced != uid.UID(7) {
		t.Fatalf("unexpected edge: %+v", edge)
	}
}

func TestShardApplyRetweetDuplicateSuppressesEdge(t *testing.T) {
	s := NewShard(0)
	s.Friends.Insert(uid.UID(7), uid.NewSet(uid.UID(42)))

	s.ApplyRetweet(1, uid.UID(7), 200, uid.UID(42), true)
	_, found := s.ApplyRetweet(1, uid.UID(7), 999, uid.UID(42), true)
	if found {
		t.Fatal("re-observing the same retweeter in the same cascade must not resolve a second edge")
	}
}

func TestShardApplyRetweetLazySeedsUnseenOrigin(t *testing.T) {
	s := NewShard(0)
	// No prior ApplyRetweet ever named cascade 5's author - the cascade's
	// seed record was never itself present in the stream.
	_, found := s.ApplyRetweet(5, uid.UID(1), 300, uid.UID(99), false)
	if found {
		t.Fatal("non-owner shard should not resolve an edge")
	}
	ts, ok := s.State.EntryTimestamp(5, uid.UID(99))
	if !ok || ts != cascade.NegInfinity {
		t.Fatalf("expected the original author lazily seeded at NegInfinity, got (%d, %v)", ts, ok)
	}
}
