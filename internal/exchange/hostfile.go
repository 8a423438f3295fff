package exchange

import (
	"bufio"
	"os"
	"strings"

	"golang.org/x/xerrors"
)

// HostFile is the ordered list of peer addresses for a run, one per process
// rank: line i is the address process i's exchange server listens on.
type HostFile []string

// ReadHostFile parses a hostfile: one "host:port" per line, blank lines and
// lines starting with '#' ignored.
func ReadHostFile(path string) (HostFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open hostfile %q: %w", path, err)
	}
	defer f.Close()

	var hosts HostFile
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("read hostfile %q: %w", path, err)
	}
	if len(hosts) == 0 {
		return nil, xerrors.Errorf("hostfile %q lists no peers", path)
	}
	return hosts, nil
}
