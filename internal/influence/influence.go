// Package influence implements the core reconstruction rule: given a
// retweet, decide which prior cascade member is most likely to have been
// the one the retweeter saw it from.
package influence

import (
	"github.com/crgp/crgp/internal/cascade"
	"github.com/crgp/crgp/internal/uid"
)

// Edge is one reconstructed influence edge: Influencer caused Influenced to
// retweet CascadeID, observed at Timestamp (the retweet's own timestamp).
type Edge struct {
	CascadeID  uint64
	Influencer uid.UID
	Influenced uid.UID
	Timestamp  int64
}

// entryTimes abstracts the lookup influence detection needs from
// cascade.StateMap so this package can be tested without constructing one.
type entryTimes interface {
	EntryTimestamp(cascadeID uint64, user uid.UID) (int64, bool)
}

// Detect picks the influencer for a retweet by retweeter of cascadeID at
// timestamp, given retweeter's friend set and the cascade's membership so
// far (state).
//
// The rule, in order:
//  1. Candidates are members of the cascade who are also friends of
//     retweeter (the set of people retweeter follows who could plausibly be
//     why they saw the tweet).
//  2. Among candidates, the one with the most recent entry timestamp wins;
//     ties broken by smallest UID, for determinism.
//  3. If there are no candidates, originalAuthor is used as a fallback -
//     retweeter presumably saw the tweet some other way, but the origin
//     author is the best attributable source CRGP can report.
//  4. If originalAuthor is also unusable (zero, or retweeter themselves),
//     no edge is produced.
func Detect(state entryTimes, friends uid.Set, cascadeID uint64, retweeter uid.UID, retweetTimestamp int64, originalAuthor uid.UID) (Edge, bool) {
	var (
		best      uid.UID
		bestTime  int64
		haveBest  bool
	)
	for f := range friends {
		if f == retweeter {
			continue
		}
		t, ok := state.EntryTimestamp(cascadeID, f)
		if !ok {
			continue
		}
		if !haveBest || t > bestTime || (t == bestTime && f < best) {
			best, bestTime, haveBest = f, t, true
		}
	}

	influencer := best
	if !haveBest {
		if originalAuthor == 0 || originalAuthor == retweeter {
			return Edge{}, false
		}
		influencer = originalAuthor
	}

	return Edge{
		CascadeID:  cascadeID,
		Influencer: influencer,
		Influenced: retweeter,
		Timestamp:  retweetTimestamp,
	}, true
}

var _ entryTimes = (*cascade.StateMap)(nil)
