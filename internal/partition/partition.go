// Package partition implements CRGP's user-to-worker-shard assignment.
//
// Shard assignment is deliberately the simplest possible scheme -
// shard(uid) = uid mod N - rather than range-partitioning over a UUID key
// space: CRGP's UIDs are dense unsigned integers, not UUIDs, so a modulus
// gives a uniform, O(1), allocation-free assignment without needing a
// big.Int range split.
package partition

import (
	"github.com/crgp/crgp/internal/uid"
	"golang.org/x/xerrors"
)

// ErrInvalidShardCount is returned when a caller asks for a partitioning
// scheme with a non-positive number of shards.
var ErrInvalidShardCount = xerrors.New("number of shards must be positive")

// Scheme partitions UIDs across a fixed number of shards.
type Scheme struct {
	n int
}

// New returns a partitioning Scheme for n total shards (n = processes *
// workers-per-process).
func New(n int) (Scheme, error) {
	if n <= 0 {
		return Scheme{}, ErrInvalidShardCount
	}
	return Scheme{n: n}, nil
}

// NumShards returns the total number of shards N this scheme partitions
// across.
func (s Scheme) NumShards() int { return s.n }

// Shard returns the shard index owning u.
func (s Scheme) Shard(u uid.UID) int {
	return int(uint64(u) % uint64(s.n))
}

// Process returns the process rank that hosts u's owning shard, given
// numProcesses total processes. Shard assignment interleaves
// shards across processes round-robin (shard s belongs to process s %
// numProcesses, local worker index s / numProcesses), so that adding
// processes without changing W redistributes shards evenly.
func (s Scheme) Process(u uid.UID, numProcesses int) int {
	return s.Shard(u) % numProcesses
}

// LocalWorker returns the local worker index (0-based, within its owning
// process) for u, given numProcesses total processes.
func (s Scheme) LocalWorker(u uid.UID, numProcesses int) int {
	return s.Shard(u) / numProcesses
}

// ShardsContainingAny returns the distinct set of shards owning any of the
// given UIDs: shards_containing_any(friends) = { shard(f) : f in friends },
// the set a selective friend-shard broadcast would target. The dataflow
// package broadcasts every update to all shards and does not call it.
func (s Scheme) ShardsContainingAny(uids []uid.UID) []int {
	seen := make(map[int]struct{}, len(uids))
	out := make([]int, 0, len(uids))
	for _, u := range uids {
		sh := s.Shard(u)
		if _, ok := seen[sh]; !ok {
			seen[sh] = struct{}{}
			out = append(out, sh)
		}
	}
	return out
}
