// Package dataflow is the epoch-driven cascade reconstruction engine: it
// owns one Shard per worker (a FriendIndex plus a cascade.StateMap), steps
// them through epochs the same way a BSP graph engine steps vertices
// through supersteps, and implements a full-broadcast routing discipline:
// every retweet is broadcast to all N shards so that each shard ends up
// holding a full replica of every cascade state it has ever observed, and
// the one shard that owns the retweeter runs influence detection locally
// once its own copy of that state reflects the update.
//
// A selective-broadcast optimization (ship updates only to shards holding
// followers of the retweeted author) is possible but would require a
// reverse (who-follows-me) index that FriendIndex, a forward structure,
// does not maintain. This package implements the full-broadcast baseline
// and leaves the optimization undone (see DESIGN.md).
package dataflow

import (
	"bytes"
	"encoding/gob"

	"github.com/crgp/crgp/internal/influence"
	"github.com/crgp/crgp/internal/uid"
)

// Update is broadcast to every shard: a retweet, naming the retweeter
// (User) and the cascade's original author (OriginalAuthor) so a shard
// that has never itself seen that cascade's seed record can still lazily
// seed the author's entry at cascade.NegInfinity.
type Update struct {
	CascadeID      uint64
	User           uid.UID
	Timestamp      int64
	OriginalAuthor uid.UID
	ToShard        int
}

// edgeWire is the gob-friendly transport shape of influence.Edge.
type edgeWire struct {
	CascadeID  uint64
	Influencer uid.UID
	Influenced uid.UID
	Timestamp  int64
}

// Frame is the single type that crosses the exchange transport in both
// directions: a request carries an Update, its reply carries an edge if
// applying that Update resolved one.
type Frame struct {
	Update  Update
	Owner   bool
	HasEdge bool
	Edge    edgeWire
}

func frameFromEdge(e influence.Edge) Frame {
	return Frame{HasEdge: true, Edge: edgeWire(e)}
}

// Edge converts a reply Frame's wire edge back to influence.Edge. Only
// meaningful when HasEdge is true.
func (f Frame) Edge_() influence.Edge {
	return influence.Edge(f.Edge)
}

// Encode gob-encodes f for transport across process boundaries.
func Encode(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode. An empty/nil payload decodes to the zero Frame
// (HasEdge false), which is the common case for an Update round trip that
// resolved nothing.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, nil
	}
	var f Frame
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return Frame{}, err
	}
	return f, nil
}
