package loader

import (
	"github.com/crgp/crgp/internal/socialgraph"
	"github.com/crgp/crgp/internal/uid"
)

// syntheticUIDSpace is set on every padded UID. Real Twitter-style user ids
// are small enough to never set the high bit, so ORing it in guarantees a
// padded UID can never collide with one the loader actually saw on disk.
const syntheticUIDSpace = uid.UID(1) << 63

// padFriendSet brings rec.Friends up to rec.DeclaredFriendCount by adding
// synthetic friends drawn from syntheticUIDSpace, deterministically derived
// from rec.User so that repeated runs over the same input pad identically.
// It is a no-op if the real friend count already meets or exceeds the
// declared count, or if no header declared a count at all.
func padFriendSet(rec *socialgraph.Record) {
	if rec.DeclaredFriendCount <= 0 {
		return
	}
	missing := rec.DeclaredFriendCount - len(rec.Friends)
	if missing <= 0 {
		return
	}
	if rec.Friends == nil {
		rec.Friends = uid.Set{}
	}
	base := syntheticUIDSpace | (uid.UID(rec.User) << 20)
	for i := 0; i < missing; i++ {
		rec.Friends.Add(base | uid.UID(i))
	}
}
