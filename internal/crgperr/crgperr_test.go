package crgperr

import (
	"testing"

	"golang.org/x/xerrors"
)

func TestWrapNilIsNil(t *testing.T) {
	if err := Wrap(Usage, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

// TestWrapPreservesSentinelReachability guards the fix for a real bug: an
// earlier version wrapped both the category sentinel and the underlying
// error with xerrors.Errorf's %w verb in the same call. x/xerrors.Errorf
// only tracks the last %w operand as its Unwrap-able cause, so the sentinel
// silently became unreachable via xerrors.Is and CategoryOf fell through to
// Internal for every wrapped error.
func TestWrapPreservesSentinelReachability(t *testing.T) {
	for _, cat := range []Category{Usage, InputFormat, InputIOFatal, PeerIOFatal, Internal} {
		wrapped := Wrap(cat, xerrors.New("boom"))
		if got := CategoryOf(wrapped); got != cat {
			t.Errorf("category %v: CategoryOf(Wrap(%v, err)) = %v, want %v", cat, cat, got, cat)
		}
	}
}

func TestWrapIncludesUnderlyingMessage(t *testing.T) {
	err := Wrap(InputIOFatal, xerrors.New("disk full"))
	if err == nil || !contains(err.Error(), "disk full") {
		t.Fatalf("expected wrapped error message to include the cause, got %v", err)
	}
}

func TestCategoryOfNilIsOK(t *testing.T) {
	if CategoryOf(nil) != OK {
		t.Fatal("expected CategoryOf(nil) == OK")
	}
}

func TestCategoryOfUnrecognizedErrorIsInternal(t *testing.T) {
	if CategoryOf(xerrors.New("mystery")) != Internal {
		t.Fatal("expected an uncategorized error to map to Internal")
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		cat  Category
		want int
	}{
		{OK, 0},
		{Usage, 1},
		{InputFormat, 2},
		{InputIOFatal, 2},
		{PeerIOFatal, 3},
		{Internal, 4},
	}
	for _, tc := range cases {
		var err error
		if tc.cat != OK {
			err = Wrap(tc.cat, xerrors.New("x"))
		}
		if got := ExitCode(err); got != tc.want {
			t.Errorf("category %v: ExitCode = %d, want %d", tc.cat, got, tc.want)
		}
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
