// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store implements a persistent translation memory on SQLite.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nlpodyssey/beamflow"
	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/rs/zerolog/log"
	"github.com/twmb/murmur3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store caches ranked translations. It implements beamflow.Cache and is safe
// for concurrent use.
type Store struct {
	db *gorm.DB
}

var _ beamflow.Cache = &Store{}

// Open opens, or creates, the SQLite database with the given filename.
func Open(filename string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(filename), &gorm.Config{
		Logger: NewLogger(log.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err = db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Key returns the cache key of a translation request.
func Key(text string, opts decoder.Options) string {
	hash := murmur3.New64()
	for _, s := range []string{text, "\x00", optionsString(opts)} {
		if _, err := hash.Write([]byte(s)); err != nil {
			panic(err)
		}
	}
	return strconv.FormatUint(hash.Sum64(), 16)
}

func optionsString(opts decoder.Options) string {
	return fmt.Sprintf("beam=%d hyp=%d len=%d decay=%g", opts.BeamWidth, opts.MaxHypotheses, opts.MaxLen, opts.Decay)
}

// Get returns the translations cached for the request, counting the hit.
func (s *Store) Get(ctx context.Context, text string, opts decoder.Options) ([]beamflow.Translation, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where(&Entry{CacheKey: Key(text, opts)}).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query translation cache: %w", err)
	}
	// the key is a hash: guard against collisions
	if e.Source != text || e.Options != optionsString(opts) {
		return nil, false, nil
	}

	var translations []beamflow.Translation
	if err = json.Unmarshal([]byte(e.Translations), &translations); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached translations: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&e).UpdateColumn("hits", gorm.Expr("hits + ?", 1)).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to update cache hits: %w", err)
	}
	return translations, true, nil
}

// Put caches the translations of the request, replacing any previous entry.
func (s *Store) Put(ctx context.Context, text string, opts decoder.Options, translations []beamflow.Translation) error {
	data, err := json.Marshal(translations)
	if err != nil {
		return err
	}
	e := Entry{
		CacheKey:     Key(text, opts),
		Source:       text,
		Options:      optionsString(opts),
		Translations: string(data),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"source", "options", "translations", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("failed to store translations: %w", err)
	}
	return nil
}

// Hits returns how many times the cached request was served.
func (s *Store) Hits(ctx context.Context, text string, opts decoder.Options) (int64, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where(&Entry{CacheKey: Key(text, opts)}).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return e.Hits, err
}

// Count returns the number of cached requests.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Entry{}).Count(&n).Error
	return n, err
}
