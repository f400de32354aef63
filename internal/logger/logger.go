// Package logger provides structured logging for the storage engine: a
// small Config/New constructor for building a top-level zerolog.Logger
// (used by cmd/treestore), plus a handful of event helpers the DB facade
// calls at open/recover/commit/free-list rebalance boundaries. Every event
// carries the same component/operation fields, plus duration_ms on the
// open and commit events.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config configures a top-level logger.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool
	Output     io.Writer
	WithCaller bool
}

// New builds a zerolog.Logger from cfg, defaulting to stdout at info level.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(output).Level(level).With().Timestamp().Str("service", "treestore").Logger()
	if cfg.WithCaller {
		l = l.With().Caller().Logger()
	}
	return l
}

// LogOpen records a database open, noting whether it bootstrapped a fresh
// WAL ring or recovered an existing one.
func LogOpen(l zerolog.Logger, path string, created bool, dur time.Duration, err error) {
	event := l.Info()
	if err != nil {
		event = l.Error().Err(err)
	}
	event.Str("component", "treestore").Str("operation", "open").
		Str("path", path).Bool("created", created).Dur("duration_ms", dur).
		Msg("database open")
}

// LogRecover records the outcome of WAL recovery: the selected record's
// sequence number, or the error if no valid slot was found.
func LogRecover(l zerolog.Logger, seq uint64, err error) {
	event := l.Debug()
	if err != nil {
		event = l.Error().Err(err)
	}
	event.Str("component", "wal").Str("operation", "recover").
		Uint64("seq", seq).Msg("wal recovery")
}

// LogCommit records one mutation's commit: the operation name, its WAL
// sequence number and how long the commit (flush + fsync + record write)
// took.
func LogCommit(l zerolog.Logger, op string, seq uint64, dur time.Duration, err error) {
	event := l.Debug()
	if err != nil {
		event = l.Error().Err(err)
	}
	event.Str("component", "treestore").Str("operation", op).
		Uint64("seq", seq).Dur("duration_ms", dur).Msg("commit")
}

// LogFreelistRebalance records how many pages moved between the per-commit
// cache and the on-disk free list during one commit.
func LogFreelistRebalance(l zerolog.Logger, linked, pulled int) {
	l.Debug().Str("component", "freelist").Str("operation", "rebalance").
		Int("linked", linked).Int("pulled", pulled).Msg("freelist rebalance")
}
