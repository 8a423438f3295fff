package loader

import (
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"golang.org/x/xerrors"

	"github.com/crgp/crgp/internal/uid"
)

// fileHeader is the optional metadata line some friendsUID.csv files carry:
// "Name;ID;#Followers;#Friends;#Statuses". When present, ID is authoritative
// over the UID encoded in the filename, and Friends is the declared friend
// count consulted by pad_users mode.
type fileHeader struct {
	Name      string
	UID       uid.UID
	Followers int
	Friends   int
	Statuses  int
}

// friendRow is the shape gocsv unmarshals the body of a friendsUID.csv file
// into: one bare UID per row under a synthetic "ID" column. The real files
// have no header over the friend-id rows themselves (only, optionally, the
// single metadata line handled by parseHeaderLine), so the synthetic header
// is prepended before handing the body to gocsv.
type friendRow struct {
	ID uint64 `csv:"ID"`
}

// parseFriendsBody parses the contents of one friendsUID.csv file (loose or
// extracted from a tar archive). It returns the optional metadata header,
// if present, and the list of friend UIDs.
func parseFriendsBody(body []byte) (*fileHeader, []uid.UID, error) {
	lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")

	var header *fileHeader
	start := 0
	if len(lines) > 0 {
		if h, ok := parseHeaderLine(lines[0]); ok {
			header = &h
			start = 1
		}
	}

	var b strings.Builder
	b.WriteString("ID\n")
	nonEmpty := 0
	for _, line := range lines[start:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
		nonEmpty++
	}
	if nonEmpty == 0 {
		if header != nil {
			return header, nil, nil
		}
		return nil, nil, nil
	}

	var rows []friendRow
	if err := gocsv.UnmarshalString(b.String(), &rows); err != nil {
		return nil, nil, xerrors.Errorf("parse friend rows: %w", err)
	}
	friends := make([]uid.UID, 0, len(rows))
	for _, r := range rows {
		friends = append(friends, uid.UID(r.ID))
	}
	return header, friends, nil
}

// parseHeaderLine recognizes the "Name;ID;#Followers;#Friends;#Statuses"
// metadata line. It deliberately parses by hand rather than through gocsv:
// the line uses a different delimiter and column count than the friend-id
// rows that follow it, so it isn't part of the same tabular shape gocsv is
// unmarshaling, and reconfiguring a reader for a single five-field line
// would cost more than the plain strings.Split below.
func parseHeaderLine(line string) (fileHeader, bool) {
	fields := strings.Split(strings.TrimSpace(line), ";")
	if len(fields) != 5 {
		return fileHeader{}, false
	}
	id, err := uid.Parse(strings.TrimSpace(fields[1]))
	if err != nil {
		return fileHeader{}, false
	}
	followers, err1 := strconv.Atoi(strings.TrimSpace(fields[2]))
	friends, err2 := strconv.Atoi(strings.TrimSpace(fields[3]))
	statuses, err3 := strconv.Atoi(strings.TrimSpace(fields[4]))
	if err1 != nil || err2 != nil || err3 != nil {
		return fileHeader{}, false
	}
	return fileHeader{
		Name:      strings.TrimSpace(fields[0]),
		UID:       id,
		Followers: followers,
		Friends:   friends,
		Statuses:  statuses,
	}, true
}
