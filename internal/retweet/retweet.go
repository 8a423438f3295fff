// Package retweet defines the wire record CRGP streams through the
// dataflow - one retweet - and its tolerant NDJSON parser, decoded with
// json-iterator/go rather than encoding/json since every line of the
// tweet stream passes through this decoder.
package retweet

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/xerrors"

	"github.com/crgp/crgp/internal/uid"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// wireUser is the nested "user" (or "retweeted_status.user") object.
type wireUser struct {
	ID uid.UID `json:"id"`
}

// wireStatus is the nested "retweeted_status" object every valid line
// carries.
type wireStatus struct {
	ID        uint64    `json:"id"`
	User      wireUser  `json:"user"`
	CreatedAt wireStamp `json:"created_at"`
}

// wireTweet is the raw NDJSON shape each stream line must provide: "id",
// "created_at", "user.id", "retweeted_status.id" and
// "retweeted_status.user.id". A line lacking "retweeted_status" is
// malformed - every valid line names the tweet it retweets.
type wireTweet struct {
	ID              uint64      `json:"id"`
	CreatedAt       wireStamp   `json:"created_at"`
	User            wireUser    `json:"user"`
	RetweetedStatus *wireStatus `json:"retweeted_status"`
}

// wireStamp accepts created_at as either a numeric epoch value or a
// conventional textual timestamp, decoding to whichever form was on the
// wire and leaving normalization to Decoder.
type wireStamp struct {
	numeric int64
	text    string
	isText  bool
}

func (w *wireStamp) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		w.text, w.isText = s, true
		return nil
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return xerrors.Errorf("created_at: %w", err)
	}
	w.numeric = n
	return nil
}

// knownTextFormats are the textual timestamp layouts CRGP recognizes, tried
// in order; Twitter's own API timestamp format is the first layout.
var knownTextFormats = []string{
	"Mon Jan 2 15:04:05 -0700 2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func (w wireStamp) normalize(unit Unit) (int64, error) {
	if !w.isText {
		return w.numeric, nil
	}
	for _, layout := range knownTextFormats {
		if t, err := time.Parse(layout, w.text); err == nil {
			if unit == Milliseconds {
				return t.UnixMilli(), nil
			}
			return t.Unix(), nil
		}
	}
	return 0, xerrors.Errorf("unrecognized created_at format %q", w.text)
}

// Unit selects the granularity Decoder normalizes every created_at value
// to, chosen once at startup.
type Unit int

const (
	Seconds Unit = iota
	Milliseconds
)

// Tweet is one retweet line of the input stream. CascadeID names the
// original tweet being retweeted (retweeted_status.id), and RetweetedUser
// its author - the fallback influencer used when no eligible friend is
// found in the cascade.
type Tweet struct {
	ID        uint64
	User      uid.UID
	Timestamp int64

	CascadeID     uint64
	RetweetedUser uid.UID
}

func fromWire(w wireTweet, unit Unit) (Tweet, error) {
	if w.RetweetedStatus == nil {
		return Tweet{}, xerrors.Errorf("missing retweeted_status")
	}
	ts, err := w.CreatedAt.normalize(unit)
	if err != nil {
		return Tweet{}, err
	}
	return Tweet{
		ID:            w.ID,
		User:          w.User.ID,
		Timestamp:     ts,
		CascadeID:     w.RetweetedStatus.ID,
		RetweetedUser: w.RetweetedStatus.User.ID,
	}, nil
}

// Decoder reads newline-delimited tweet JSON, skipping and counting
// malformed lines rather than failing the whole stream - one bad line in a
// multi-gigabyte tweet export is an InputFormatError on that line, not a
// reason to abort the run.
type Decoder struct {
	scanner   *bufio.Scanner
	unit      Unit
	lineNo    int
	skipped   int
	lastError error
}

// NewDecoder wraps r for line-oriented tweet decoding. Every created_at
// value is normalized to unit.
func NewDecoder(r io.Reader, unit Unit) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	return &Decoder{scanner: s, unit: unit}
}

// Next returns the next successfully parsed tweet, or io.EOF once the
// stream is exhausted. Malformed lines are skipped transparently; call
// Skipped after Next returns io.EOF to find out how many were dropped, and
// LastError to see the most recent parse failure.
func (d *Decoder) Next() (Tweet, error) {
	for d.scanner.Scan() {
		d.lineNo++
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}
		var w wireTweet
		if err := json.Unmarshal([]byte(line), &w); err != nil {
			d.skipped++
			d.lastError = xerrors.Errorf("line %d: %w", d.lineNo, err)
			continue
		}
		t, err := fromWire(w, d.unit)
		if err != nil {
			d.skipped++
			d.lastError = xerrors.Errorf("line %d: %w", d.lineNo, err)
			continue
		}
		return t, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Tweet{}, xerrors.Errorf("read tweet stream: %w", err)
	}
	return Tweet{}, io.EOF
}

// Skipped returns the number of lines dropped for failing to parse.
func (d *Decoder) Skipped() int { return d.skipped }

// LastError returns the most recent per-line parse error, or nil if none
// occurred.
func (d *Decoder) LastError() error { return d.lastError }
