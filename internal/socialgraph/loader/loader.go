// Package loader implements the social-graph loader: it enumerates a
// friends file, a loose directory tree of friendsUID.csv files, or a
// directory of tar archives packing those same files, and emits one
// socialgraph.Record per user.
//
// The fan-out shape - a discovery stage feeding a fixed pool of parse
// workers, with a shared error channel drained by the caller - is
// expressed directly against the loader's own concrete item type rather
// than a composable multi-stage pipeline abstraction: the loader has a
// single, fixed shape (discover -> parse -> emit), so the indirection
// would add types without adding capability.
package loader

import (
	"bufio"
	"context"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/crgp/crgp/internal/socialgraph"
	"github.com/crgp/crgp/internal/uid"
)

var friendsFileRe = regexp.MustCompile(`^friends(\d+)\.csv$`)

// Stats summarizes what happened during a Load call. All counters are safe
// to read only after Load has returned.
type Stats struct {
	UsersLoaded    uint64
	UsersSkipped   uint64
	FilesSkipped   uint64
	Friendships    uint64
	PaddedUsers    uint64
	PaddedFriendships uint64
}

// Config configures a Load run.
type Config struct {
	// Fs is the filesystem the Root path is resolved against. Defaults to
	// the OS filesystem if nil.
	Fs afero.Fs

	// Root is either a single text-mode friends file or the root of a
	// directory tree (see package doc).
	Root string

	// PadUsers enables synthetic friend padding: see socialgraph.Record's
	// DeclaredFriendCount and pad.go.
	PadUsers bool

	// Selected, if non-nil, restricts emitted records to these users; every
	// other user in the input is skipped without being counted as an error.
	Selected uid.Set

	// Workers is the number of concurrent parse workers for archive/directory
	// mode. It has no effect on text mode, which is read as a single stream.
	// Defaults to 1.
	Workers int

	Logger *logrus.Entry
}

func (c *Config) fs() afero.Fs {
	if c.Fs != nil {
		return c.Fs
	}
	return afero.NewOsFs()
}

func (c *Config) logger() *logrus.Entry {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (c *Config) workers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

// item is one not-yet-parsed friends record discovered from the input,
// tagged with enough context to report a useful error.
type item struct {
	source string // path or "path!archive-member", for error messages
	body   []byte
}

// Load walks Config.Root and invokes emit once per successfully parsed
// user. Parsing is done by Config.Workers concurrent workers, but their emit
// calls are serialized by a mutex, so the caller does not need to
// synchronize emit.
//
// Load never returns an error for per-record parse failures; those are
// counted in the returned Stats and logged. It returns an error only for a
// fatal failure to open the root path (InputIOFatal in spec terms), or when
// ctx is canceled during a directory walk.
func Load(ctx context.Context, cfg Config, emit func(socialgraph.Record)) (Stats, error) {
	fs := cfg.fs()
	logger := cfg.logger()

	info, err := fs.Stat(cfg.Root)
	if err != nil {
		return Stats{}, xerrors.Errorf("open social graph root %q: %w", cfg.Root, err)
	}

	var (
		stats   Stats
		statsMu sync.Mutex
		errs    error
		errsMu  sync.Mutex
	)
	recordErr := func(err error) {
		errsMu.Lock()
		errs = multierror.Append(errs, err)
		errsMu.Unlock()
	}

	if !info.IsDir() {
		n, skipped, friendships, ferrs := loadTextFile(fs, cfg.Root, cfg.Selected, emit)
		stats.UsersLoaded += n
		stats.UsersSkipped += skipped
		stats.Friendships += friendships
		for _, e := range ferrs {
			recordErr(e)
		}
		if len(ferrs) > 0 {
			logger.WithField("count", len(ferrs)).Warn("skipped malformed lines while loading friends file")
		}
		return stats, nil
	}

	items := make(chan item)
	var discoverErr error
	go func() {
		defer close(items)
		discoverErr = discover(ctx, fs, cfg.Root, items, func(err error) {
			statsMu.Lock()
			stats.FilesSkipped++
			statsMu.Unlock()
			recordErr(err)
		})
	}()

	var wg sync.WaitGroup
	var emitMu sync.Mutex
	for i := 0; i < cfg.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range items {
				rec, err := parseItem(it)
				if err != nil {
					statsMu.Lock()
					stats.UsersSkipped++
					statsMu.Unlock()
					recordErr(xerrors.Errorf("%s: %w", it.source, err))
					continue
				}
				if cfg.Selected != nil && !cfg.Selected.Contains(rec.User) {
					continue
				}
				if cfg.PadUsers {
					before := len(rec.Friends)
					padFriendSet(&rec)
					statsMu.Lock()
					if len(rec.Friends) > before {
						stats.PaddedUsers++
						stats.PaddedFriendships += uint64(len(rec.Friends) - before)
					}
					statsMu.Unlock()
					logger.WithFields(logrus.Fields{
						"user":     rec.User,
						"declared": rec.DeclaredFriendCount,
						"real":     before,
					}).Debug("padded user with synthetic friends")
				}
				statsMu.Lock()
				stats.UsersLoaded++
				stats.Friendships += uint64(len(rec.Friends))
				statsMu.Unlock()

				emitMu.Lock()
				emit(rec)
				emitMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if discoverErr != nil {
		return stats, xerrors.Errorf("walk social graph root %q: %w", cfg.Root, discoverErr)
	}
	if errs != nil {
		if me, ok := errs.(*multierror.Error); ok {
			logger.WithField("count", len(me.Errors)).Warn("skipped malformed friend records")
		}
	}
	return stats, nil
}

// discover walks the directory tree rooted at root, emitting one item per
// friendsUID.csv file found either loose on disk or as a tar archive member.
func discover(ctx context.Context, fs afero.Fs, root string, out chan<- item, onErr func(error)) error {
	return afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			onErr(xerrors.Errorf("stat %q: %w", p, err))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}

		base := path.Base(p)
		switch {
		case strings.HasSuffix(base, ".tar"):
			if err := discoverTar(fs, p, out); err != nil {
				onErr(xerrors.Errorf("open archive %q: %w", p, err))
			}
			return nil
		case friendsFileRe.MatchString(base):
			f, err := fs.Open(p)
			if err != nil {
				onErr(xerrors.Errorf("open %q: %w", p, err))
				return nil
			}
			defer f.Close()
			body, err := io.ReadAll(bufio.NewReader(f))
			if err != nil {
				onErr(xerrors.Errorf("read %q: %w", p, err))
				return nil
			}
			out <- item{source: p, body: body}
			return nil
		default:
			return nil
		}
	})
}

func parseItem(it item) (socialgraph.Record, error) {
	if !utf8.Valid(it.body) {
		return socialgraph.Record{}, xerrors.New("file is not valid UTF-8")
	}

	fileUID, hasFileUID := extractUIDFromSource(it.source)
	header, friends, err := parseFriendsBody(it.body)
	if err != nil {
		return socialgraph.Record{}, err
	}

	user := fileUID
	if header != nil {
		user = header.UID
	} else if !hasFileUID {
		return socialgraph.Record{}, xerrors.New("cannot determine owning user id")
	}

	rec := socialgraph.Record{
		User:    user,
		Friends: uid.NewSet(friends...),
	}
	if header != nil {
		rec.DeclaredFriendCount = header.Friends
	}
	return rec, nil
}

// extractUIDFromSource pulls the UID out of a "friendsUID.csv"-shaped path,
// possibly qualified with an archive member suffix ("archive.tar!.../friendsUID.csv").
func extractUIDFromSource(source string) (uid.UID, bool) {
	base := path.Base(source)
	if idx := strings.LastIndexByte(base, '!'); idx >= 0 {
		base = path.Base(base[idx+1:])
	}
	m := friendsFileRe.FindStringSubmatch(base)
	if m == nil {
		return 0, false
	}
	u, err := uid.Parse(m[1])
	if err != nil {
		return 0, false
	}
	return u, true
}

// loadTextFile implements text mode: UTF-8 lines "<UID>:<UID>,<UID>,...".
func loadTextFile(fs afero.Fs, path string, selected uid.Set, emit func(socialgraph.Record)) (loaded, skipped, friendships uint64, errs []error) {
	f, err := fs.Open(path)
	if err != nil {
		errs = append(errs, err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !utf8.ValidString(line) {
			skipped++
			errs = append(errs, xerrors.Errorf("line %d: not valid UTF-8", lineNo))
			continue
		}
		rec, err := parseTextLine(line)
		if err != nil {
			skipped++
			errs = append(errs, xerrors.Errorf("line %d: %w", lineNo, err))
			continue
		}
		if selected != nil && !selected.Contains(rec.User) {
			continue
		}
		loaded++
		friendships += uint64(len(rec.Friends))
		emit(rec)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return
}

func parseTextLine(line string) (socialgraph.Record, error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return socialgraph.Record{}, xerrors.Errorf("missing ':' separator")
	}
	user, err := uid.Parse(strings.TrimSpace(line[:colon]))
	if err != nil {
		return socialgraph.Record{}, xerrors.Errorf("parse user id: %w", err)
	}

	rest := strings.TrimSpace(line[colon+1:])
	friends := uid.Set{}
	if rest != "" {
		for _, tok := range strings.Split(rest, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			f, err := uid.Parse(tok)
			if err != nil {
				return socialgraph.Record{}, xerrors.Errorf("parse friend id %q: %w", tok, err)
			}
			friends.Add(f)
		}
	}
	return socialgraph.Record{User: user, Friends: friends}, nil
}
