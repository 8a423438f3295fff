package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/crgp/crgp/internal/config"
	"github.com/crgp/crgp/internal/crgperr"
	"github.com/crgp/crgp/internal/driver"
	"github.com/crgp/crgp/internal/logging"
	"github.com/crgp/crgp/internal/retweet"
	"github.com/crgp/crgp/internal/sink"
	"github.com/crgp/crgp/internal/telemetry"
)

var (
	appName = "crgp"
	appSha  = "populated-at-link-time"
)

func main() {
	if err := makeApp().Run(os.Args); err != nil {
		code := crgperr.ExitCode(err)
		fmt.Fprintf(os.Stderr, "crgp: %v\n", err)
		os.Exit(code)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Usage = "reconstruct influence edges of Retweet cascades over a social graph"
	app.ArgsUsage = "FRIENDS_PATH RETWEETS_PATH"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "workers, w", Value: 1, Usage: "workers per process"},
		cli.IntFlag{Name: "processes, n", Value: 1, Usage: "total processes in the group"},
		cli.IntFlag{Name: "process, p", Value: 0, Usage: "this process's rank, 0 <= K < N"},
		cli.StringFlag{Name: "hostfile, h", Usage: "peer address file; absent uses localhost:2101.."},
		cli.StringFlag{Name: "output, o", Usage: "directory to write results/statistics"},
		cli.IntFlag{Name: "batch-size", Value: 0, Usage: "max Retweets per epoch (0 = unbounded)"},
		cli.BoolFlag{Name: "pad-users", Usage: "enable synthetic friend padding per header metadata"},
		cli.StringFlag{Name: "selected-users, u", Usage: "restrict loaded friend lists to these UIDs"},
		cli.BoolFlag{Name: "report-connection-progress", Usage: "log peer connection barrier progress"},
		cli.BoolFlag{Name: "timestamp-millis", Usage: "treat created_at as milliseconds instead of seconds"},
		cli.IntFlag{Name: "verbose, v", Usage: "verbosity level as a number: 0 info, 1 debug, 2+ trace (not repeatable)"},
		cli.StringFlag{Name: "log-dir, l", Usage: "log file directory"},
		cli.StringFlag{Name: "metrics-addr", Usage: "bind address for the Prometheus/pprof HTTP server"},
	}
	app.Action = runMain
	return app
}

func runMain(appCtx *cli.Context) error {
	if appCtx.NArg() != 2 {
		return crgperr.Wrap(crgperr.Usage, xerrors.Errorf("expected FRIENDS_PATH and RETWEETS_PATH, got %d arguments", appCtx.NArg()))
	}

	host, _ := os.Hostname()
	rootLogger, closer, err := logging.Setup(appCtx.Int("verbose"), appCtx.String("log-dir"), logging.Fields{
		App:     appName,
		Version: appSha,
		Host:    host,
		Process: appCtx.Int("process"),
	})
	if err != nil {
		return crgperr.Wrap(crgperr.Usage, err)
	}
	defer closer.Close()

	unit := retweet.Seconds
	if appCtx.Bool("timestamp-millis") {
		unit = retweet.Milliseconds
	}

	cfg := config.Config{
		Process:                  appCtx.Int("process"),
		Processes:                appCtx.Int("processes"),
		WorkersPerProcess:        appCtx.Int("workers"),
		HostFile:                 appCtx.String("hostfile"),
		SocialGraphPath:          appCtx.Args().Get(0),
		TweetStreamPath:          appCtx.Args().Get(1),
		OutputPath:               appCtx.String("output"),
		BatchSize:                appCtx.Int("batch-size"),
		PadUsers:                 appCtx.Bool("pad-users"),
		SelectedUsersPath:        appCtx.String("selected-users"),
		ReportConnectionProgress: appCtx.Bool("report-connection-progress"),
		LogDir:                   appCtx.String("log-dir"),
		Verbosity:                appCtx.Int("verbose"),
		MetricsAddr:              appCtx.String("metrics-addr"),
		TimestampUnit:            unit,
	}

	d, err := driver.New(cfg, rootLogger)
	if err != nil {
		return err
	}
	defer d.Close()

	metrics, registry := telemetry.NewMetrics()
	d.Metrics = metrics

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		telemetrySrv := telemetry.NewServer(cfg.MetricsAddr, registry)
		go telemetrySrv.Run(ctx, rootLogger)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sigCh:
			rootLogger.WithField("signal", s.String()).Info("shutting down due to signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	phases, edges, counts, runErr := d.Run(ctx)
	if runErr != nil {
		return runErr
	}
	if cfg.Process != 0 {
		return nil
	}

	if err := os.MkdirAll(cfg.OutputPath, 0o755); err != nil {
		return crgperr.Wrap(crgperr.InputIOFatal, xerrors.Errorf("create output directory: %w", err))
	}
	runID := uuid.NewString()
	if err := sink.WriteResults(cfg.OutputPath, runID, edges); err != nil {
		return crgperr.Wrap(crgperr.InputIOFatal, err)
	}
	topo := sink.Topology{Processes: cfg.Processes, Workers: cfg.WorkersPerProcess, BatchSize: cfg.BatchSize, PadUsers: cfg.PadUsers}
	if err := sink.WriteStats(cfg.OutputPath, runID, counts, phases.AsSinkPhases(), topo, edges, rootLogger); err != nil {
		return crgperr.Wrap(crgperr.InputIOFatal, err)
	}

	rootLogger.WithFields(logrus.Fields{
		"edges":           len(edges),
		"setup":           phases.Setup,
		"ingest":          phases.Ingest,
		"retweet_load":    phases.RetweetLoad,
		"retweet_process": phases.RetweetProcess,
	}).Info("run complete")
	return nil
}
