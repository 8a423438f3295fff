// Package socialgraph defines the domain types for the follower graph:
// per-user friend sets and the read-only, per-shard FriendIndex built from
// them during ingest.
package socialgraph

import (
	"golang.org/x/xerrors"

	"github.com/crgp/crgp/internal/uid"
)

// ErrDuplicateUser is returned by FriendIndex.Insert when a user is
// inserted twice; the ingest operator treats this as an
// InternalInvariantViolation since the loader is expected to emit at most
// one record per user.
var ErrDuplicateUser = xerrors.New("duplicate user in friend index")

// Record is one (user, friends) pair produced by the loader, destined for
// whichever worker owns shard(user).
type Record struct {
	User    uid.UID
	Friends uid.Set

	// DeclaredFriendCount is the friend count taken from an optional CSV
	// header line, used only by pad_users mode (see loader.Config.PadUsers).
	DeclaredFriendCount int
}

// FriendIndex is the read-only, per-worker mapping from a locally-owned user
// to their friend set. It is built once during the ingest phase (epoch 0)
// and never mutated afterward.
type FriendIndex struct {
	byUser map[uid.UID]uid.Set
	frozen bool
}

// NewFriendIndex returns an empty, writable FriendIndex.
func NewFriendIndex() *FriendIndex {
	return &FriendIndex{byUser: make(map[uid.UID]uid.Set)}
}

// Insert adds a user's friend set to the index. It is an error to insert the
// same user twice or to insert after Freeze.
func (idx *FriendIndex) Insert(user uid.UID, friends uid.Set) error {
	if idx.frozen {
		return xerrors.Errorf("insert user %d: %w", user, ErrFrozen)
	}
	if _, exists := idx.byUser[user]; exists {
		return xerrors.Errorf("insert user %d: %w", user, ErrDuplicateUser)
	}
	idx.byUser[user] = friends
	return nil
}

// ErrFrozen is returned by Insert once the index has been frozen.
var ErrFrozen = xerrors.New("friend index is frozen")

// Freeze marks the index read-only. Called once ingest's epoch closes.
func (idx *FriendIndex) Freeze() { idx.frozen = true }

// Friends returns the friend set of user, or the empty set if user is not
// locally resident (this worker does not own it, or it was never seen by
// the loader).
func (idx *FriendIndex) Friends(user uid.UID) uid.Set {
	if f, ok := idx.byUser[user]; ok {
		return f
	}
	return nil
}

// Len returns the number of users resident in this shard.
func (idx *FriendIndex) Len() int { return len(idx.byUser) }

// NumFriendships returns the total number of directed friendship edges
// resident in this shard, i.e. sum(|friends(u)|).
func (idx *FriendIndex) NumFriendships() uint64 {
	var total uint64
	for _, f := range idx.byUser {
		total += uint64(len(f))
	}
	return total
}

// Users returns every user resident in this shard. Used only for testing
// and statistics; not on any hot path.
func (idx *FriendIndex) Users() []uid.UID {
	out := make([]uid.UID, 0, len(idx.byUser))
	for u := range idx.byUser {
		out = append(out, u)
	}
	return out
}
