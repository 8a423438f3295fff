// Package crgperr defines CRGP's error taxonomy and maps it to process
// exit codes; only main itself ever calls os.Exit, using the category of
// a returned error to pick the code.
package crgperr

import (
	"golang.org/x/xerrors"
)

// Category classifies a failure for exit-code purposes. Every error CRGP
// surfaces to its CLI entrypoint is expected to wrap one of the sentinels
// below via xerrors.Errorf's %w verb.
type Category int

const (
	// OK is not a failure category; it exists only so ExitCode(nil) == 0
	// reads naturally alongside the others.
	OK Category = iota
	// Usage covers bad flags, bad configuration, and other errors the
	// operator caused and can fix by re-invoking the command differently.
	Usage
	// InputFormat covers malformed input that stopped an entire run rather
	// than being skippable at the record level. A social graph root that
	// doesn't exist or an unreadable hostfile is reported as InputIOFatal.
	InputFormat
	// InputIOFatal covers I/O failures reading input that are not a format
	// problem - permission denied, disk full, a filesystem that vanished
	// mid-run.
	InputIOFatal
	// PeerIOFatal covers failures of the inter-process transport: a peer
	// never came up, a connection dropped mid-epoch and retries exhausted.
	PeerIOFatal
	// Internal covers invariant violations - states the implementation
	// asserts can never happen. Seeing this exit code means a bug, not a
	// bad input.
	Internal
)

var exitCodes = map[Category]int{
	OK:           0,
	Usage:        1,
	InputFormat:  2,
	InputIOFatal: 2,
	PeerIOFatal:  3,
	Internal:     4,
}

// sentinels, one per category, to be wrapped with xerrors.Errorf("...: %w", SentinelX).
var (
	ErrUsage        = xerrors.New("usage error")
	ErrInputFormat  = xerrors.New("input format error")
	ErrInputIOFatal = xerrors.New("fatal input I/O error")
	ErrPeerIOFatal  = xerrors.New("fatal peer I/O error")
	ErrInternal     = xerrors.New("internal invariant violation")
)

var sentinelCategory = []struct {
	err error
	cat Category
}{
	{ErrUsage, Usage},
	{ErrInputFormat, InputFormat},
	{ErrInputIOFatal, InputIOFatal},
	{ErrPeerIOFatal, PeerIOFatal},
	{ErrInternal, Internal},
}

// Wrap annotates err as belonging to cat. xerrors.Errorf's %w verb can only
// mark one operand per call, so the sentinel - not err - takes that slot;
// err's own message is still folded in via %v, just not further
// unwrappable, which CategoryOf never needs.
func Wrap(cat Category, err error) error {
	if err == nil {
		return nil
	}
	for _, sc := range sentinelCategory {
		if sc.cat == cat {
			return xerrors.Errorf("%w: %v", sc.err, err)
		}
	}
	return err
}

// CategoryOf inspects err's wrap chain and returns the most specific
// category sentinel it finds. Unrecognized errors are treated as Internal,
// on the theory that an error CRGP itself didn't categorize is exactly the
// kind of thing its invariants are meant to prevent.
func CategoryOf(err error) Category {
	if err == nil {
		return OK
	}
	for _, sc := range sentinelCategory {
		if xerrors.Is(err, sc.err) {
			return sc.cat
		}
	}
	return Internal
}

// ExitCode returns the process exit code for err (0 for nil).
func ExitCode(err error) int {
	return exitCodes[CategoryOf(err)]
}
