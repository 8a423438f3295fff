// Package sink writes CRGP's run output: a tab-separated results file and
// a hand-formatted TOML statistics file, using dustin/go-humanize for the
// human-readable log line and montanaflynn/stats for the numeric
// aggregates the statistics file reports.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/crgp/crgp/internal/influence"
)

// Counts accumulates the run-wide counters the statistics file reports:
// loader/ingest counters plus retweet-stream counters.
type Counts struct {
	UsersLoaded       uint64
	UsersSkipped      uint64
	Friendships       uint64
	PaddedUsers       uint64
	RetweetsProcessed uint64
	RetweetsSkipped   uint64
	CascadesSeen      uint64
	EdgesEmitted      uint64
}

// Phases carries the same wall-clock fields as driver.Phases; sink does not
// import driver (that would be a cycle - driver already imports sink), so
// callers convert with driver.Phases.AsSinkPhases instead. The four
// durations are setup, social graph ingest, retweet stream load, and
// retweet stream processing.
type Phases struct {
	SetupMillis          int64
	IngestMillis         int64
	RetweetLoadMillis    int64
	RetweetProcessMillis int64
}

// Topology records the run's shape, echoed into the statistics file for
// reproducibility.
type Topology struct {
	Processes int
	Workers   int
	BatchSize int
	PadUsers  bool
}

// WriteResults writes one line per edge, "cascade_id\tinfluencer\tinfluenced\ttimestamp",
// to "<dir>/<run>-results.txt".
func WriteResults(dir, run string, edges []influence.Edge) error {
	path := filepath.Join(dir, run+"-results.txt")
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("create results file %q: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range edges {
		if _, err := fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", e.CascadeID, e.Influencer, e.Influenced, e.Timestamp); err != nil {
			return xerrors.Errorf("write results file %q: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return xerrors.Errorf("flush results file %q: %w", path, err)
	}
	return nil
}

// WriteStats writes "<dir>/<run>-stats.toml" summarizing the run, and logs
// a human-readable one-liner via logger.
func WriteStats(dir, run string, counts Counts, phases Phases, topo Topology, edges []influence.Edge, logger *logrus.Entry) error {
	path := filepath.Join(dir, run+"-stats.toml")
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("create stats file %q: %w", path, err)
	}
	defer f.Close()

	perCascade := edgesPerCascade(edges)

	var b strings.Builder
	b.WriteString("[configuration]\n")
	fmt.Fprintf(&b, "processes = %d\n", topo.Processes)
	fmt.Fprintf(&b, "workers = %d\n", topo.Workers)
	fmt.Fprintf(&b, "batch_size = %d\n", topo.BatchSize)
	fmt.Fprintf(&b, "pad_users = %t\n\n", topo.PadUsers)

	b.WriteString("[counts]\n")
	fmt.Fprintf(&b, "users_loaded = %d\n", counts.UsersLoaded)
	fmt.Fprintf(&b, "users_skipped = %d\n", counts.UsersSkipped)
	fmt.Fprintf(&b, "friendships = %d\n", counts.Friendships)
	fmt.Fprintf(&b, "padded_users = %d\n", counts.PaddedUsers)
	fmt.Fprintf(&b, "retweets_processed = %d\n", counts.RetweetsProcessed)
	fmt.Fprintf(&b, "retweets_skipped = %d\n", counts.RetweetsSkipped)
	fmt.Fprintf(&b, "cascades_seen = %d\n", counts.CascadesSeen)
	fmt.Fprintf(&b, "edges_emitted = %d\n\n", counts.EdgesEmitted)

	total := totalDuration(phases)
	b.WriteString("[timing]\n")
	fmt.Fprintf(&b, "setup_ms = %d\n", phases.SetupMillis)
	fmt.Fprintf(&b, "ingest_ms = %d\n", phases.IngestMillis)
	fmt.Fprintf(&b, "retweet_load_ms = %d\n", phases.RetweetLoadMillis)
	fmt.Fprintf(&b, "retweet_process_ms = %d\n", phases.RetweetProcessMillis)
	fmt.Fprintf(&b, "total_ms = %d\n", total.Milliseconds())
	fmt.Fprintf(&b, "retweets_per_second = %s\n\n", formatFloat(retweetsPerSecond(counts.RetweetsProcessed, phases.RetweetProcessMillis)))

	b.WriteString("[cascade_size]\n")
	writeDistribution(&b, perCascade)

	if _, err := io.WriteString(f, b.String()); err != nil {
		return xerrors.Errorf("write stats file %q: %w", path, err)
	}

	logger.WithFields(logrus.Fields{
		"edges":     humanize.Comma(int64(counts.EdgesEmitted)),
		"retweets":  humanize.Comma(int64(counts.RetweetsProcessed)),
		"cascades":  humanize.Comma(int64(counts.CascadesSeen)),
		"wall_time": totalDuration(phases).String(),
	}).Info("run complete")
	return nil
}

func totalDuration(phases Phases) time.Duration {
	total := phases.SetupMillis + phases.IngestMillis + phases.RetweetLoadMillis + phases.RetweetProcessMillis
	return time.Duration(total) * time.Millisecond
}

// retweetsPerSecond mirrors the original's retweet_processing_rate: zero
// whenever the processing phase took no measurable time, to avoid a
// division by zero.
func retweetsPerSecond(processed uint64, processMillis int64) float64 {
	if processMillis == 0 {
		return 0
	}
	return float64(processed) / (float64(processMillis) / 1000)
}

func edgesPerCascade(edges []influence.Edge) []float64 {
	counts := make(map[uint64]int)
	for _, e := range edges {
		counts[e.CascadeID]++
	}
	sizes := make([]float64, 0, len(counts))
	for _, c := range counts {
		sizes = append(sizes, float64(c))
	}
	sort.Float64s(sizes)
	return sizes
}

func writeDistribution(b *strings.Builder, sizes []float64) {
	if len(sizes) == 0 {
		b.WriteString("count = 0\n")
		return
	}
	mean, _ := stats.Mean(sizes)
	median, _ := stats.Median(sizes)
	stddev, _ := stats.StandardDeviation(sizes)
	max, _ := stats.Max(sizes)
	min, _ := stats.Min(sizes)

	fmt.Fprintf(b, "count = %d\n", len(sizes))
	fmt.Fprintf(b, "mean = %s\n", formatFloat(mean))
	fmt.Fprintf(b, "median = %s\n", formatFloat(median))
	fmt.Fprintf(b, "stddev = %s\n", formatFloat(stddev))
	fmt.Fprintf(b, "max = %s\n", formatFloat(max))
	fmt.Fprintf(b, "min = %s\n", formatFloat(min))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
