// Package logging configures the logrus logger CRGP shares across every
// component: a JSON formatter, a handful of static fields, and
// verbosity-to-level mapping.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Fields are the static identifying fields stamped onto every log line.
type Fields struct {
	App     string
	Version string
	Host    string
	Process int
}

// Setup builds the root logger for a run. verbosity is the CLI's numeric
// -v value: 0 is Info, 1 is Debug, 2+ is Trace. If dir is
// non-empty, output is redirected to "<dir>/crgp.process<N>.log" instead of
// stderr, per the -l/--log-dir flag.
func Setup(verbosity int, dir string, fields Fields) (*logrus.Entry, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(levelFor(verbosity))

	var closer io.Closer = noopCloser{}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, xerrors.Errorf("create log directory %q: %w", dir, err)
		}
		path := filepath.Join(dir, logFileName(fields.Process))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, xerrors.Errorf("open log file %q: %w", path, err)
		}
		logger.SetOutput(f)
		closer = f
	}

	entry := logger.WithFields(logrus.Fields{
		"app":     fields.App,
		"version": fields.Version,
		"host":    fields.Host,
		"process": fields.Process,
	})
	return entry, closer, nil
}

func logFileName(process int) string {
	if process < 0 {
		return "crgp.log"
	}
	return "crgp.process" + itoa(process) + ".log"
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

func levelFor(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.InfoLevel
	case verbosity == 1:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }
