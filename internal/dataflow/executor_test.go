package dataflow

import (
	"context"
	"testing"

	"github.com/crgp/crgp/internal/cascade"
	"github.com/crgp/crgp/internal/exchange"
	"github.com/crgp/crgp/internal/partition"
	"github.com/crgp/crgp/internal/uid"
)

func singleProcessRouter(t *testing.T, numShards int) *Router {
	t.Helper()
	scheme, err := partition.New(numShards)
	if err != nil {
		t.Fatalf("partition.New: %v", err)
	}
	shards := make(map[int]*Shard, numShards)
	for i := 0; i < numShards; i++ {
		shards[i] = NewShard(i)
	}
	return NewRouter(scheme, 1, 0, shards, nil)
}

func TestRouterApplyLocalSeedsOriginalAuthor(t *testing.T) {
	r := singleProcessRouter(t, 2)
	// The cascade's seed record: user 42 retweeting their own tweet.
	_, found, err := r.Apply(context.Background(), Update{CascadeID: 1, User: uid.UID(42), Timestamp: 10, OriginalAuthor: uid.UID(42), ToShard: 0}, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if found {
		t.Fatal("a non-owner apply never resolves an edge")
	}
	ts, ok := r.shards[0].State.EntryTimestamp(1, uid.UID(42))
	if !ok || ts != cascade.NegInfinity {
		t.Fatalf("expected the author lazily seeded at NegInfinity in shard 0, got (%d, %v)", ts, ok)
	}
}

func TestRouterApplyUnknownShard(t *testing.T) {
	r := singleProcessRouter(t, 2)
	_, _, err := r.Apply(context.Background(), Update{ToShard: 0}, false)
	if err != nil {
		t.Fatalf("Apply to a hosted shard should not error: %v", err)
	}
	delete(r.shards, 0)
	_, _, err = r.Apply(context.Background(), Update{ToShard: 0}, false)
	if err == nil {
		t.Fatal("expected an error routing to an unhosted shard")
	}
}

func TestBroadcastUpdateAppliesToEveryShardOnceEachOnOwnerResolves(t *testing.T) {
	r := singleProcessRouter(t, 3)
	r.shards[1].Friends.Insert(uid.UID(7), uid.NewSet(uid.UID(42)))

	edges, err := BroadcastUpdate(context.Background(), r, Update{CascadeID: 1, User: uid.UID(42), Timestamp: 100, OriginalAuthor: uid.UID(42)}, -1)
	if err != nil {
		t.Fatalf("BroadcastUpdate seed: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("the seed record's own broadcast should never resolve edges, got %v", edges)
	}
	for i := 0; i < 3; i++ {
		if _, ok := r.shards[i].State.EntryTimestamp(1, uid.UID(42)); !ok {
			t.Fatalf("shard %d did not receive the broadcast seed", i)
		}
	}

	edges, err = BroadcastUpdate(context.Background(), r, Update{CascadeID: 1, User: uid.UID(7), Timestamp: 200, OriginalAuthor: uid.UID(42)}, 1)
	if err != nil {
		t.Fatalf("BroadcastUpdate retweet: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected exactly one edge from the owner shard, got %d: %v", len(edges), edges)
	}
	if edges[0].Influencer != uid.UID(42) || edges[0].Influenced != uid.UID(7) {
		t.Fatalf("unexpected edge: %+v", edges[0])
	}
}

func TestInboxDeliverAppliesLocallyAndRepliesWithEdge(t *testing.T) {
	r := singleProcessRouter(t, 1)
	r.shards[0].Friends.Insert(uid.UID(7), uid.NewSet(uid.UID(42)))
	r.shards[0].ApplyRetweet(1, uid.UID(42), 100, uid.UID(42), false)

	frame := Frame{Update: Update{CascadeID: 1, User: uid.UID(7), Timestamp: 200, OriginalAuthor: uid.UID(42), ToShard: 0}, Owner: true}
	payload, err := Encode(frame)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	inbox := Inbox{Router: r}
	reply, err := inbox.Deliver(exchange.Envelope{Payload: payload})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	got, err := Decode(reply)
	if err != nil {
		t.Fatalf("Decode reply: %v", err)
	}
	if !got.HasEdge || got.Edge_().Influencer != uid.UID(42) {
		t.Fatalf("expected a reply edge from 42, got %+v", got)
	}
}
