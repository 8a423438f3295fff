// Package config holds CRGP's run configuration and its validation: a flat
// struct populated by the CLI layer, validated once via a multierror.Error
// that aggregates every problem found rather than stopping at the first
// one, and carrying an injectable clock for deterministic tests.
package config

import (
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"golang.org/x/xerrors"

	"github.com/crgp/crgp/internal/retweet"
)

// Config is the fully-resolved set of parameters for one CRGP process.
type Config struct {
	// Process is this process's 0-based rank among Processes peers.
	Process int
	// Processes is P, the total number of cooperating processes.
	Processes int
	// WorkersPerProcess is W, the number of local worker shards each
	// process runs. N = Processes * WorkersPerProcess total shards.
	WorkersPerProcess int

	// HostFile names every process's peer address, one per line, ordered
	// by rank; Processes must equal its line count. Optional: when empty,
	// driver.resolveHosts falls back to localhost:2101..2101+Processes-1.
	HostFile string

	// SocialGraphPath is the friends file or directory tree loader.Load
	// reads.
	SocialGraphPath string
	// TweetStreamPath is the NDJSON retweet stream. Only rank 0 reads it;
	// other ranks receive redistributed batches over the peer transport.
	TweetStreamPath string

	// OutputPath is where reconstructed influence edges are written.
	OutputPath string
	// StatsPath is not read by any component: the statistics file is always
	// written under OutputPath, next to the results file.
	StatsPath string

	// BatchSize is the number of tweets read and distributed per epoch. Zero
	// puts the whole tweet stream into a single epoch.
	BatchSize int

	// PadUsers enables synthetic friend padding during ingest.
	PadUsers bool
	// SelectedUsersPath, if non-empty, restricts the social graph loaded
	// from SocialGraphPath to the users it lists.
	SelectedUsersPath string
	// ReportConnectionProgress turns on periodic logging of the peer
	// connection barrier's progress, useful on clusters with many peers.
	ReportConnectionProgress bool

	// LogDir redirects logs to a per-process file when non-empty.
	LogDir string
	// Verbosity is the -v flag's numeric value (0 info, 1 debug, 2+ trace).
	Verbosity int

	// MetricsAddr is the bind address for the Prometheus/pprof HTTP
	// server; empty disables it.
	MetricsAddr string

	// TimestampUnit is the granularity every tweet stream's created_at
	// value is normalized to, chosen once at startup.
	TimestampUnit retweet.Unit

	// Clock is injected for testable phase timing; defaults to the real
	// wall clock if left nil (see WithDefaults).
	Clock clock.Clock
}

// WithDefaults returns a copy of cfg with zero-valued optional fields
// filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.WorkersPerProcess <= 0 {
		cfg.WorkersPerProcess = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return cfg
}

// NumShards returns the total number of worker shards N across the whole
// run.
func (cfg Config) NumShards() int {
	return cfg.Processes * cfg.WorkersPerProcess
}

// Validate checks cfg for internal consistency, returning every problem
// found rather than just the first.
func (cfg Config) Validate() error {
	var result *multierror.Error
	if cfg.Processes <= 0 {
		result = multierror.Append(result, xerrors.New("processes must be positive"))
	}
	if cfg.Process < 0 || (cfg.Processes > 0 && cfg.Process >= cfg.Processes) {
		result = multierror.Append(result, xerrors.Errorf("process rank %d out of range [0,%d)", cfg.Process, cfg.Processes))
	}
	if cfg.WorkersPerProcess <= 0 {
		result = multierror.Append(result, xerrors.New("workers-per-process must be positive"))
	}
	if cfg.SocialGraphPath == "" {
		result = multierror.Append(result, xerrors.New("social graph path is required"))
	}
	if cfg.TweetStreamPath == "" && cfg.Process == 0 {
		result = multierror.Append(result, xerrors.New("tweet stream path is required on process 0"))
	}
	if cfg.OutputPath == "" {
		result = multierror.Append(result, xerrors.New("output path is required"))
	}
	if cfg.BatchSize < 0 {
		result = multierror.Append(result, xerrors.New("batch size must not be negative"))
	}
	return result.ErrorOrNil()
}
