package loader

import (
	"archive/tar"
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"

	"github.com/crgp/crgp/internal/socialgraph"
	"github.com/crgp/crgp/internal/uid"
)

func TestLoadTextMode(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/graph.txt", []byte("1:2,3\n2:1\n\n3:1,2\n"), 0o644)

	var got []socialgraph.Record
	stats, err := Load(context.Background(), Config{Fs: fs, Root: "/graph.txt"}, func(r socialgraph.Record) {
		got = append(got, r)
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.UsersLoaded != 3 {
		t.Fatalf("expected 3 users loaded, got %d", stats.UsersLoaded)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 emitted records, got %d", len(got))
	}
}

func TestLoadTextModeSkipsMalformedLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/graph.txt", []byte("1:2,3\nnotaline\n2:x,y\n"), 0o644)

	stats, err := Load(context.Background(), Config{Fs: fs, Root: "/graph.txt"}, func(socialgraph.Record) {})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.UsersLoaded != 1 {
		t.Fatalf("expected 1 user loaded, got %d", stats.UsersLoaded)
	}
	if stats.UsersSkipped != 2 {
		t.Fatalf("expected 2 skipped lines, got %d", stats.UsersSkipped)
	}
}

func TestLoadTextModeAppliesSelectedFilter(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/graph.txt", []byte("1:2\n2:1\n3:1\n"), 0o644)

	var got []uid.UID
	_, err := Load(context.Background(), Config{Fs: fs, Root: "/graph.txt", Selected: uid.NewSet(1, 3)}, func(r socialgraph.Record) {
		got = append(got, r.User)
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records after filtering, got %d: %v", len(got), got)
	}
}

func TestLoadDirectoryModeLooseFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/graph/friends1.csv", []byte("2\n3\n"), 0o644)
	afero.WriteFile(fs, "/graph/friends2.csv", []byte("1\n"), 0o644)

	var got []socialgraph.Record
	stats, err := Load(context.Background(), Config{Fs: fs, Root: "/graph", Workers: 2}, func(r socialgraph.Record) {
		got = append(got, r)
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.UsersLoaded != 2 {
		t.Fatalf("expected 2 users loaded, got %d", stats.UsersLoaded)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 emitted records, got %d", len(got))
	}
}

func TestLoadDirectoryModeHeaderOverridesFilenameUID(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := "Alice;99;10;2;500\n1\n2\n"
	afero.WriteFile(fs, "/graph/friends1.csv", []byte(body), 0o644)

	var got socialgraph.Record
	_, err := Load(context.Background(), Config{Fs: fs, Root: "/graph"}, func(r socialgraph.Record) {
		got = r
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.User != uid.UID(99) {
		t.Fatalf("expected header UID 99 to win over filename UID 1, got %d", got.User)
	}
	if got.DeclaredFriendCount != 2 {
		t.Fatalf("expected declared friend count 2, got %d", got.DeclaredFriendCount)
	}
}

func TestLoadDirectoryModePadsUsers(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := "Bob;5;10;4;500\n1\n"
	afero.WriteFile(fs, "/graph/friends5.csv", []byte(body), 0o644)

	var got socialgraph.Record
	stats, err := Load(context.Background(), Config{Fs: fs, Root: "/graph", PadUsers: true}, func(r socialgraph.Record) {
		got = r
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Friends) != 4 {
		t.Fatalf("expected friend set padded to declared count 4, got %d", len(got.Friends))
	}
	if stats.PaddedUsers != 1 {
		t.Fatalf("expected 1 padded user, got %d", stats.PaddedUsers)
	}
}

func TestLoadArchiveMode(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	writeTarMember(t, tw, "friends7.csv", "1\n2\n")
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}

	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/graph/000.tar", buf.Bytes(), 0o644)

	var got socialgraph.Record
	stats, err := Load(context.Background(), Config{Fs: fs, Root: "/graph"}, func(r socialgraph.Record) {
		got = r
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.UsersLoaded != 1 {
		t.Fatalf("expected 1 user loaded from the tar member, got %d", stats.UsersLoaded)
	}
	if got.User != uid.UID(7) || len(got.Friends) != 2 {
		t.Fatalf("unexpected record from tar member: %+v", got)
	}
}

func writeTarMember(t *testing.T, tw *tar.Writer, name, body string) {
	t.Helper()
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write tar header: %v", err)
	}
	if _, err := tw.Write([]byte(body)); err != nil {
		t.Fatalf("write tar body: %v", err)
	}
}
