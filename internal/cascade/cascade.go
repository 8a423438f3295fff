// Package cascade tracks, per shard, which users have joined which Retweet
// cascades and when. It is the mutable half of the influence-detection
// state; the other half is the read-only socialgraph.FriendIndex.
package cascade

import (
	"math"

	"github.com/crgp/crgp/internal/uid"
)

// NegInfinity is the entry timestamp used to lazily seed a cascade's
// original author the first time any retweet of that cascade is observed.
// It sorts before every real timestamp, so an author who is also a friend of
// the retweeter is chosen only when no other friend has entered the cascade;
// the author never outranks a real entrant.
const NegInfinity int64 = math.MinInt64

// Outcome classifies what Observe did to the cascade's membership.
type Outcome int

const (
	// Seed means this call created a brand-new cascade (the author's lazy
	// entry into their own cascade).
	Seed Outcome = iota
	// Insert means user joined a cascade that already existed.
	Insert
	// Duplicate means user was already a member; their entry timestamp is
	// left untouched. A cascade member's retweet of the same cascade a
	// second time does not move their entry time.
	Duplicate
)

// member records when a user entered a cascade, for recency tie-breaking in
// influence detection.
type member struct {
	entryTimestamp int64
}

// StateMap is the per-shard mapping from cascade id to its membership. It is
// owned by exactly one worker and mutated only as that worker processes
// epochs; there is no internal locking.
type StateMap struct {
	cascades map[uint64]map[uid.UID]member
}

// NewStateMap returns an empty StateMap.
func NewStateMap() *StateMap {
	return &StateMap{cascades: make(map[uint64]map[uid.UID]member)}
}

// Observe records that user entered cascadeID at timestamp, either as the
// cascade's origin or as a retweeter. It returns which of the three
// outcomes applied.
func (m *StateMap) Observe(cascadeID uint64, user uid.UID, timestamp int64) Outcome {
	members, ok := m.cascades[cascadeID]
	if !ok {
		members = make(map[uid.UID]member)
		m.cascades[cascadeID] = members
		members[user] = member{entryTimestamp: timestamp}
		return Seed
	}
	if _, exists := members[user]; exists {
		return Duplicate
	}
	members[user] = member{entryTimestamp: timestamp}
	return Insert
}

// EntryTimestamp returns when user entered cascadeID, and whether they are a
// member at all.
func (m *StateMap) EntryTimestamp(cascadeID uint64, user uid.UID) (int64, bool) {
	members, ok := m.cascades[cascadeID]
	if !ok {
		return 0, false
	}
	mem, ok := members[user]
	return mem.entryTimestamp, ok
}

// IsMember reports whether user has already entered cascadeID.
func (m *StateMap) IsMember(cascadeID uint64, user uid.UID) bool {
	_, ok := m.EntryTimestamp(cascadeID, user)
	return ok
}

// Members returns the set of users who have entered cascadeID, or nil if
// the cascade is unknown to this shard.
func (m *StateMap) Members(cascadeID uint64) uid.Set {
	members, ok := m.cascades[cascadeID]
	if !ok {
		return nil
	}
	out := make(uid.Set, len(members))
	for u := range members {
		out.Add(u)
	}
	return out
}

// NumCascades returns how many distinct cascades this shard has seen.
func (m *StateMap) NumCascades() int { return len(m.cascades) }
