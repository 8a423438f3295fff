package dataflow

import (
	"github.com/crgp/crgp/internal/cascade"
	"github.com/crgp/crgp/internal/influence"
	"github.com/crgp/crgp/internal/socialgraph"
	"github.com/crgp/crgp/internal/uid"
)

// Shard is one of the N = processes * workers units of the partitioned
// follower graph: a read-only FriendIndex built during ingest, and a
// cascade.StateMap that, under the full-broadcast routing discipline, ends
// up holding a full replica of every cascade this shard has ever been
// broadcast an update for, not just the portion touching locally-resident
// users.
type Shard struct {
	ID      int
	Friends *socialgraph.FriendIndex
	State   *cascade.StateMap
}

// NewShard returns an empty shard with the given id.
func NewShard(id int) *Shard {
	return &Shard{ID: id, Friends: socialgraph.NewFriendIndex(), State: cascade.NewStateMap()}
}

// ApplyRetweet replays a retweet into this shard's state, and - only if
// this shard owns the retweeter, i.e. is where influence detection must
// run - resolves and returns the influence edge for it.
//
// The lazy re-seed with cascade.NegInfinity is a no-op on every shard
// where the cascade's original author was already observed, whether from
// an earlier retweet of the same cascade or from the cascade's own seed
// record; it only has an effect the first time any shard observes a
// retweet of a cascade whose author it has not yet seen.
func (s *Shard) ApplyRetweet(cascadeID uint64, retweeter uid.UID, timestamp int64, originalAuthor uid.UID, owner bool) (influence.Edge, bool) {
	s.State.Observe(cascadeID, originalAuthor, cascade.NegInfinity)
	outcome := s.State.Observe(cascadeID, retweeter, timestamp)

	if !owner || outcome == cascade.Duplicate {
		return influence.Edge{}, false
	}

	friends := s.Friends.Friends(retweeter)
	return influence.Detect(s.State, friends, cascadeID, retweeter, timestamp, originalAuthor)
}
