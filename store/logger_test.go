// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestCacheLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.Disabled, cacheLogLevel(gormlogger.Silent))
	assert.Equal(t, zerolog.Disabled, cacheLogLevel(0))
	assert.Equal(t, zerolog.ErrorLevel, cacheLogLevel(gormlogger.Error))
	assert.Equal(t, zerolog.WarnLevel, cacheLogLevel(gormlogger.Warn))
	assert.Equal(t, zerolog.InfoLevel, cacheLogLevel(gormlogger.Info))
	assert.Equal(t, zerolog.TraceLevel, cacheLogLevel(gormlogger.Info+1))
}

func TestLoggerTrace(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(zerolog.New(&buf)).LogMode(gormlogger.Warn).(Logger)
	assert.Equal(t, DefaultSlowQuery, l.SlowQuery)

	calls := 0
	fc := func() (string, int64) {
		calls++
		return "SELECT * FROM entries", 0
	}
	ctx := context.Background()

	l.Trace(ctx, time.Now(), fc, gorm.ErrRecordNotFound)
	l.Trace(ctx, time.Now(), fc, nil)
	assert.Empty(t, buf.String())
	assert.Zero(t, calls)

	l.Trace(ctx, time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "slow cache query")
	assert.Contains(t, buf.String(), `"component":"store"`)

	buf.Reset()
	l.Trace(ctx, time.Now(), fc, errors.New("disk I/O error"))
	assert.Contains(t, buf.String(), "cache query failed")
	assert.Contains(t, buf.String(), "disk I/O error")
	assert.Contains(t, buf.String(), "SELECT * FROM entries")
	assert.Equal(t, 2, calls)

	buf.Reset()
	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(ctx, time.Now(), fc, errors.New("disk I/O error"))
	silent.Error(ctx, "unreachable %d", 1)
	assert.Empty(t, buf.String())
}
