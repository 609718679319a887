package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/jakinnaird/stsdb/pkg/log"
)

// driverName is registered once below, wrapping the sqlite3 driver with
// sqlhooks so every statement against a PerMetricStore logs its SQL text,
// bind args, and timing at debug level (SPEC_FULL's additive
// qustavo/sqlhooks/v2 wiring), and so every sqlite3.Error surfaced by a
// statement is warned through pkg/log the way original_source/'s
// kernel.cpp installs sqliteErrorCallback via sqlite3_config(
// SQLITE_CONFIG_LOG, ...) before opening any connection. mattn/go-sqlite3
// doesn't expose that process-wide hook to pure Go callers, so the
// equivalent is done per-statement here via sqlhooks' OnError, which is
// the closest real hook this driver stack offers.
const driverName = "sqlite3-hooked"

type loggingHooks struct{}

type timingKey struct{}

func (loggingHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	return context.WithValue(ctx, timingKey{}, time.Now()), nil
}

func (loggingHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if start, ok := ctx.Value(timingKey{}).(time.Time); ok {
		log.Debugf("store: %s args=%v took=%s", query, args, time.Since(start))
	}
	return ctx, nil
}

// OnError mirrors sqliteErrorCallback's "sqlite error: {msg} ({code})"
// warn-level logging, keyed off the richer sqlite3.Error the driver
// returns instead of the raw C callback arguments.
func (loggingHooks) OnError(ctx context.Context, err error, query string, args ...interface{}) error {
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		log.Warnf("sqlite error: %s (%d) query=%s", sqliteErr.Error(), sqliteErr.Code, query)
	}
	return err
}

func init() {
	sql.Register(driverName, sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, loggingHooks{}))
}
