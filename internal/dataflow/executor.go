package dataflow

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/crgp/crgp/internal/exchange"
	"github.com/crgp/crgp/internal/influence"
	"github.com/crgp/crgp/internal/partition"
)

// Router applies an Update to whichever shard owns ToShard, locally if this
// process hosts it, over an exchange.Client otherwise, and returns any
// influence edge that application resolved.
type Router struct {
	scheme       partition.Scheme
	numProcesses int
	rank         int

	mu     sync.Mutex
	shards map[int]*Shard
	clients []*exchange.Client // indexed by process rank; own rank's entry is nil
}

// NewRouter builds a Router owning the given local shards (indexed by
// global shard id) and holding one client per peer process (nil for this
// process's own rank).
func NewRouter(scheme partition.Scheme, numProcesses, rank int, shards map[int]*Shard, clients []*exchange.Client) *Router {
	return &Router{scheme: scheme, numProcesses: numProcesses, rank: rank, shards: shards, clients: clients}
}

// ownerProcess returns which process rank hosts a shard index. Shards are
// assigned to processes round-robin (see partition.Scheme.Process), so
// this is that same formula applied to an already-computed shard index.
func (r *Router) ownerProcess(shard int) int {
	return shard % r.numProcesses
}

// Apply routes update to update.ToShard and reports any influence edge that
// application resolved there. owner tells the destination shard whether it
// is the retweeter's own shard, i.e. whether it must also run influence
// detection after folding the update into its cascade state.
func (r *Router) Apply(ctx context.Context, update Update, owner bool) (influence.Edge, bool, error) {
	proc := r.ownerProcess(update.ToShard)
	if proc == r.rank {
		return r.applyLocal(update, owner)
	}
	return r.applyRemote(ctx, proc, update, owner)
}

func (r *Router) applyLocal(update Update, owner bool) (influence.Edge, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	shard, ok := r.shards[update.ToShard]
	if !ok {
		return influence.Edge{}, false, xerrors.Errorf("process %d does not host shard %d", r.rank, update.ToShard)
	}
	edge, found := shard.ApplyRetweet(update.CascadeID, update.User, update.Timestamp, update.OriginalAuthor, owner)
	return edge, found, nil
}

func (r *Router) applyRemote(ctx context.Context, proc int, update Update, owner bool) (influence.Edge, bool, error) {
	if proc < 0 || proc >= len(r.clients) || r.clients[proc] == nil {
		return influence.Edge{}, false, xerrors.Errorf("no route to process %d for shard %d", proc, update.ToShard)
	}
	payload, err := Encode(withOwner(Frame{Update: update}, owner))
	if err != nil {
		return influence.Edge{}, false, xerrors.Errorf("encode update: %w", err)
	}

	replyPayload, err := r.clients[proc].Send(ctx, exchange.Envelope{ToShard: update.ToShard, Payload: payload})
	if err != nil {
		return influence.Edge{}, false, err
	}
	reply, err := Decode(replyPayload)
	if err != nil {
		return influence.Edge{}, false, xerrors.Errorf("decode reply: %w", err)
	}
	if !reply.HasEdge {
		return influence.Edge{}, false, nil
	}
	return reply.Edge_(), true, nil
}

func withOwner(f Frame, owner bool) Frame {
	f.Owner = owner
	return f
}

// BroadcastUpdate applies update to every one of the N shards, returning
// whichever influence edges resolved - in practice at most one, from
// ownerShard (update.ToShard is overwritten for each shard), but the return
// type stays a slice so callers never need a special case.
func BroadcastUpdate(ctx context.Context, router *Router, update Update, ownerShard int) ([]influence.Edge, error) {
	var edges []influence.Edge
	for shard := 0; shard < router.scheme.NumShards(); shard++ {
		u := update
		u.ToShard = shard
		edge, found, err := router.Apply(ctx, u, shard == ownerShard)
		if err != nil {
			return edges, xerrors.Errorf("broadcast to shard %d: %w", shard, err)
		}
		if found {
			edges = append(edges, edge)
		}
	}
	return edges, nil
}

// Inbox adapts a Router to exchange.Inbox: incoming envelopes carry a Frame
// whose Update should be applied to this process's local shard.
type Inbox struct {
	Router *Router
}

// Deliver implements exchange.Inbox.
func (in Inbox) Deliver(env exchange.Envelope) ([]byte, error) {
	frame, err := Decode(env.Payload)
	if err != nil {
		return nil, xerrors.Errorf("decode inbound frame: %w", err)
	}
	edge, found, err := in.Router.applyLocal(frame.Update, frame.Owner)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	reply, err := Encode(frameFromEdge(edge))
	if err != nil {
		return nil, xerrors.Errorf("encode reply frame: %w", err)
	}
	return reply, nil
}
