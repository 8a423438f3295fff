// Package driver implements the epoch/batch driver: it builds the shard
// topology, runs the one-time graph-ingest phase, and then - on process 0
// only - reads, sorts, batches and feeds the retweet stream through the
// dataflow, epoch by epoch, timing each phase against an injected clock.
package driver

import (
	"bufio"
	"context"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/crgp/crgp/internal/config"
	"github.com/crgp/crgp/internal/crgperr"
	"github.com/crgp/crgp/internal/dataflow"
	"github.com/crgp/crgp/internal/exchange"
	"github.com/crgp/crgp/internal/influence"
	"github.com/crgp/crgp/internal/partition"
	"github.com/crgp/crgp/internal/retweet"
	"github.com/crgp/crgp/internal/sink"
	"github.com/crgp/crgp/internal/socialgraph"
	"github.com/crgp/crgp/internal/socialgraph/loader"
	"github.com/crgp/crgp/internal/telemetry"
	"github.com/crgp/crgp/internal/uid"
)

// Driver owns one process's slice of the dataflow: its local shards, its
// exchange server/clients, and the phase sequence that turns configuration
// into either "feed the stream" (rank 0) or "serve peer RPCs until told to
// stop" (every other rank).
type Driver struct {
	Config  config.Config
	Scheme  partition.Scheme
	Logger  *logrus.Entry
	Clock   clock.Clock
	Metrics *telemetry.Metrics // nil disables metrics updates

	shards  map[int]*dataflow.Shard
	router  *dataflow.Router
	server  *exchange.Server
	clients []*exchange.Client
}

// New validates cfg, builds the partitioning scheme, and constructs this
// process's local shards (empty; ingest populates them).
func New(cfg config.Config, logger *logrus.Entry) (*Driver, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, crgperr.Wrap(crgperr.Usage, err)
	}

	scheme, err := partition.New(cfg.NumShards())
	if err != nil {
		return nil, crgperr.Wrap(crgperr.Usage, err)
	}

	shards := make(map[int]*dataflow.Shard)
	for s := 0; s < scheme.NumShards(); s++ {
		if s%cfg.Processes == cfg.Process {
			shards[s] = dataflow.NewShard(s)
		}
	}

	return &Driver{Config: cfg, Scheme: scheme, Logger: logger, Clock: cfg.Clock, shards: shards}, nil
}

// Phases records the wall-clock duration of each run phase, for the
// statistics file: setup (topology and shard construction plus the peer
// connect barrier), social graph ingest, retweet stream load, and retweet
// stream processing.
type Phases struct {
	Setup          clockDuration
	Ingest         clockDuration
	RetweetLoad    clockDuration
	RetweetProcess clockDuration
}

type clockDuration = int64 // milliseconds

// AsSinkPhases adapts Phases to sink.Phases for WriteStats, without giving
// driver and sink a circular import.
func (p Phases) AsSinkPhases() sink.Phases {
	return sink.Phases{
		SetupMillis:          p.Setup,
		IngestMillis:         p.Ingest,
		RetweetLoadMillis:    p.RetweetLoad,
		RetweetProcessMillis: p.RetweetProcess,
	}
}

// Run executes the full lifecycle: connect to peers, ingest the social
// graph, then either feed the retweet stream (process 0) or serve peer RPC
// until shut down (every other process).
func (d *Driver) Run(ctx context.Context) (Phases, []influence.Edge, sink.Counts, error) {
	var phases Phases
	var counts sink.Counts

	setupStart := d.Clock.Now()
	hosts, err := d.resolveHosts()
	if err != nil {
		return phases, nil, counts, err
	}
	clients := make([]*exchange.Client, len(hosts))
	for r, addr := range hosts {
		if r != d.Config.Process {
			clients[r] = exchange.NewClient(addr)
		}
	}
	d.clients = clients
	d.router = dataflow.NewRouter(d.Scheme, d.Config.Processes, d.Config.Process, d.shards, d.clients)

	server, err := exchange.NewServer(hosts[d.Config.Process], dataflow.Inbox{Router: d.router}, d.Logger)
	if err != nil {
		return phases, nil, counts, err
	}
	d.server = server

	if d.Config.Processes > 1 {
		if err := exchange.ConnectBarrier(ctx, d.clients, d.Config.ReportConnectionProgress, d.Logger); err != nil {
			return phases, nil, counts, err
		}
	}
	phases.Setup = d.Clock.Now().Sub(setupStart).Milliseconds()

	ingestStart := d.Clock.Now()
	loadStats, err := d.ingest(ctx)
	if err != nil {
		return phases, nil, counts, err
	}
	phases.Ingest = d.Clock.Now().Sub(ingestStart).Milliseconds()
	counts.UsersLoaded = loadStats.UsersLoaded
	counts.UsersSkipped = loadStats.UsersSkipped
	counts.Friendships = loadStats.Friendships
	counts.PaddedUsers = loadStats.PaddedUsers

	if d.Config.Process != 0 {
		if err := d.server.WaitForShutdown(ctx); err != nil {
			return phases, nil, counts, err
		}
		return phases, nil, counts, nil
	}

	loadStart := d.Clock.Now()
	tweets, skipped, err := d.loadRetweets()
	phases.RetweetLoad = d.Clock.Now().Sub(loadStart).Milliseconds()
	counts.RetweetsSkipped = skipped
	if err != nil {
		return phases, nil, counts, err
	}

	processStart := d.Clock.Now()
	edges, streamCounts, err := d.processRetweets(ctx, tweets)
	phases.RetweetProcess = d.Clock.Now().Sub(processStart).Milliseconds()
	counts.RetweetsProcessed = streamCounts.RetweetsProcessed
	counts.CascadesSeen = streamCounts.CascadesSeen
	counts.EdgesEmitted = uint64(len(edges))
	if err != nil {
		return phases, edges, counts, err
	}

	var shutdownErrs error
	for _, c := range d.clients {
		if c == nil {
			continue
		}
		if err := c.Shutdown(ctx); err != nil {
			shutdownErrs = multierror.Append(shutdownErrs, err)
		}
	}
	if shutdownErrs != nil {
		return phases, edges, counts, crgperr.Wrap(crgperr.PeerIOFatal, shutdownErrs)
	}
	return phases, edges, counts, nil
}

// Close releases the server and any peer connections.
func (d *Driver) Close() error {
	var result *multierror.Error
	if d.server != nil {
		result = multierror.Append(result, d.server.Close())
	}
	for _, c := range d.clients {
		if c != nil {
			result = multierror.Append(result, c.Close())
		}
	}
	return result.ErrorOrNil()
}

// resolveHosts returns one address per process rank: from the hostfile if
// one was given, or a "localhost:2101..2101+N-1" default otherwise.
func (d *Driver) resolveHosts() (exchange.HostFile, error) {
	if d.Config.HostFile == "" {
		hosts := make(exchange.HostFile, d.Config.Processes)
		for r := range hosts {
			hosts[r] = "localhost:" + itoa(2101+r)
		}
		return hosts, nil
	}
	hosts, err := exchange.ReadHostFile(d.Config.HostFile)
	if err != nil {
		return nil, crgperr.Wrap(crgperr.InputIOFatal, err)
	}
	if len(hosts) != d.Config.Processes {
		return nil, crgperr.Wrap(crgperr.Usage, xerrors.Errorf("hostfile lists %d peers, want %d", len(hosts), d.Config.Processes))
	}
	return hosts, nil
}

func (d *Driver) ingest(ctx context.Context) (loader.Stats, error) {
	var selected uid.Set
	if d.Config.SelectedUsersPath != "" {
		s, err := readSelectedUsers(d.Config.SelectedUsersPath)
		if err != nil {
			return loader.Stats{}, crgperr.Wrap(crgperr.InputIOFatal, err)
		}
		selected = s
	}

	cfg := loader.Config{
		Root:     d.Config.SocialGraphPath,
		PadUsers: d.Config.PadUsers,
		Selected: selected,
		Workers:  d.Config.WorkersPerProcess,
		Logger:   d.Logger,
	}

	var insertErr error
	stats, err := loader.Load(ctx, cfg, func(rec socialgraph.Record) {
		s := d.Scheme.Shard(rec.User)
		shard, ok := d.shards[s]
		if !ok {
			return // owned by a different process; every process filters independently
		}
		if err := shard.Friends.Insert(rec.User, rec.Friends); err != nil && insertErr == nil {
			insertErr = err
		}
	})
	if err != nil {
		return stats, crgperr.Wrap(crgperr.InputIOFatal, err)
	}
	if insertErr != nil {
		return stats, crgperr.Wrap(crgperr.Internal, insertErr)
	}
	for _, shard := range d.shards {
		shard.Friends.Freeze()
	}
	return stats, nil
}

// readSelectedUsers parses the -u/--selected-users file: one UID per line.
func readSelectedUsers(path string) (uid.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("read selected users file %q: %w", path, err)
	}
	defer f.Close()

	set := uid.Set{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		u, err := uid.Parse(line)
		if err != nil {
			continue
		}
		set.Add(u)
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("read selected users file %q: %w", path, err)
	}
	return set, nil
}

// streamCounts accumulates the per-run counters gathered while feeding the
// retweet stream, not otherwise covered by loader.Stats.
type streamCounts struct {
	RetweetsProcessed uint64
	CascadesSeen      uint64
}

// loadRetweets opens and decodes the retweet stream and sorts it into
// replay order, timed separately from processRetweets so the statistics
// file can report retweet loading and retweet processing apart.
func (d *Driver) loadRetweets() ([]retweet.Tweet, uint64, error) {
	f, err := os.Open(d.Config.TweetStreamPath)
	if err != nil {
		return nil, 0, crgperr.Wrap(crgperr.InputIOFatal, xerrors.Errorf("open tweet stream: %w", err))
	}
	defer f.Close()

	dec := retweet.NewDecoder(f, d.Config.TimestampUnit)
	var tweets []retweet.Tweet
	for {
		t, err := dec.Next()
		if err != nil {
			break
		}
		tweets = append(tweets, t)
	}
	skipped := uint64(dec.Skipped())
	if d.Metrics != nil {
		for i := 0; i < dec.Skipped(); i++ {
			d.Metrics.RetweetsSkipped.Inc()
		}
	}

	sort.Slice(tweets, func(i, j int) bool {
		if tweets[i].Timestamp != tweets[j].Timestamp {
			return tweets[i].Timestamp < tweets[j].Timestamp
		}
		return tweets[i].ID < tweets[j].ID
	})
	return tweets, skipped, nil
}

func (d *Driver) processRetweets(ctx context.Context, tweets []retweet.Tweet) ([]influence.Edge, streamCounts, error) {
	var counts streamCounts

	batchSize := d.Config.BatchSize
	if batchSize <= 0 {
		batchSize = len(tweets)
		if batchSize == 0 {
			batchSize = 1
		}
	}

	seenCascades := make(map[uint64]struct{})
	var edges []influence.Edge
	for epoch, start := 1, 0; start < len(tweets); epoch, start = epoch+1, start+batchSize {
		end := start + batchSize
		if end > len(tweets) {
			end = len(tweets)
		}
		if d.Metrics != nil {
			d.Metrics.CurrentEpoch.Set(float64(epoch))
		}
		for _, t := range tweets[start:end] {
			seenCascades[t.CascadeID] = struct{}{}
			counts.RetweetsProcessed++
			if d.Metrics != nil {
				d.Metrics.RetweetsProcessed.Inc()
			}

			update := dataflow.Update{
				CascadeID:      t.CascadeID,
				User:           t.User,
				Timestamp:      t.Timestamp,
				OriginalAuthor: t.RetweetedUser,
			}

			ownerShard := d.Scheme.Shard(update.User)
			batchEdges, err := dataflow.BroadcastUpdate(ctx, d.router, update, ownerShard)
			if err != nil {
				return edges, counts, crgperr.Wrap(crgperr.PeerIOFatal, err)
			}
			edges = append(edges, batchEdges...)
			if d.Metrics != nil {
				for range batchEdges {
					d.Metrics.EdgesEmitted.Inc()
				}
			}
		}
	}
	counts.CascadesSeen = uint64(len(seenCascades))
	return edges, counts, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
