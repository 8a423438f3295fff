package exchange

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempHostfile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hostfile")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write hostfile: %v", err)
	}
	return path
}

func TestReadHostFileSkipsBlankAndCommentLines(t *testing.T) {
	path := writeTempHostfile(t, "# peers\n10.0.0.1:9000\n\n10.0.0.2:9000\n# trailing comment\n10.0.0.3:9000\n")
	hosts, err := ReadHostFile(path)
	if err != nil {
		t.Fatalf("ReadHostFile: %v", err)
	}
	want := HostFile{"10.0.0.1:9000", "10.0.0.2:9000", "10.0.0.3:9000"}
	if len(hosts) != len(want) {
		t.Fatalf("expected %d hosts, got %d: %v", len(want), len(hosts), hosts)
	}
	for i := range want {
		if hosts[i] != want[i] {
			t.Errorf("hosts[%d] = %q, want %q", i, hosts[i], want[i])
		}
	}
}

func TestReadHostFileRejectsEmpty(t *testing.T) {
	path := writeTempHostfile(t, "# only comments\n\n")
	if _, err := ReadHostFile(path); err == nil {
		t.Fatal("expected an error for a hostfile with no peers")
	}
}

func TestReadHostFileMissingFile(t *testing.T) {
	if _, err := ReadHostFile(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("expected an error for a missing hostfile")
	}
}
