// Package uid defines the user identifier type shared by every CRGP
// component and the handful of parsing helpers that turn wire
// representations (JSON numbers, CSV fields, colon-delimited friend lines)
// into it.
package uid

import (
	"strconv"

	"golang.org/x/xerrors"
)

// UID is an opaque, unsigned 64-bit user identifier. It is partitioned by
// UID mod N and is never negative or interpreted arithmetically outside of
// that partitioning.
type UID uint64

// Parse converts a decimal string into a UID. Leading/trailing whitespace is
// not tolerated; callers are expected to trim beforehand.
func Parse(s string) (UID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("parse uid %q: %w", s, err)
	}
	return UID(v), nil
}

// MustParse is like Parse but panics on error. It exists for table-driven
// tests where the literal is known to be valid.
func MustParse(s string) UID {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Set is an unordered collection of UIDs.
type Set map[UID]struct{}

// NewSet builds a Set from the given UIDs, deduplicating as it goes.
func NewSet(uids ...UID) Set {
	s := make(Set, len(uids))
	for _, u := range uids {
		s[u] = struct{}{}
	}
	return s
}

// Add inserts u into the set.
func (s Set) Add(u UID) { s[u] = struct{}{} }

// Contains reports whether u is a member of the set.
func (s Set) Contains(u UID) bool {
	_, ok := s[u]
	return ok
}

// Slice returns the set's members in unspecified order.
func (s Set) Slice() []UID {
	out := make([]UID, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	return out
}
