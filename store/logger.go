// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQuery is the default threshold above which a cache query is
// reported as slow.
const DefaultSlowQuery = 200 * time.Millisecond

// Logger reports the queries the translation cache runs against its
// database. Lookups of missing entries are cache misses: they are logged at
// trace level, never as errors.
type Logger struct {
	zerolog.Logger
	// SlowQuery is the duration above which a query is logged as a warning.
	// Zero disables the check.
	SlowQuery time.Duration
}

var _ gormlogger.Interface = Logger{}

// NewLogger returns a cache Logger writing to parent with the "component"
// field set to "store".
func NewLogger(parent zerolog.Logger) Logger {
	return Logger{
		Logger:    parent.With().Str("component", "store").Logger(),
		SlowQuery: DefaultSlowQuery,
	}
}

// LogMode implements gormlogger.Interface, mapping the gorm verbosity to a
// zerolog level. Levels above Info enable the query trace.
func (l Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	l.Logger = l.Logger.Level(cacheLogLevel(level))
	return l
}

func cacheLogLevel(level gormlogger.LogLevel) zerolog.Level {
	switch {
	case level <= gormlogger.Silent:
		return zerolog.Disabled
	case level == gormlogger.Error:
		return zerolog.ErrorLevel
	case level == gormlogger.Warn:
		return zerolog.WarnLevel
	case level == gormlogger.Info:
		return zerolog.InfoLevel
	default:
		return zerolog.TraceLevel
	}
}

func (l Logger) Info(_ context.Context, msg string, data ...any) {
	l.Logger.Info().Msgf(msg, data...)
}

func (l Logger) Warn(_ context.Context, msg string, data ...any) {
	l.Logger.Warn().Msgf(msg, data...)
}

func (l Logger) Error(_ context.Context, msg string, data ...any) {
	l.Logger.Error().Msgf(msg, data...)
}

// Trace logs a cache query once it completed.
func (l Logger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	event := func(e *zerolog.Event) *zerolog.Event {
		if e == nil {
			return nil
		}
		sql, rows := fc()
		return e.Str("query", sql).Int64("rows", rows).Dur("elapsed", elapsed)
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		event(l.Logger.Trace()).Msg("cache miss")
	case err != nil:
		event(l.Logger.Error().Err(err)).Msg("cache query failed")
	case l.SlowQuery > 0 && elapsed > l.SlowQuery:
		event(l.Logger.Warn()).Msg("slow cache query")
	default:
		event(l.Logger.Debug()).Msg("cache query")
	}
}
