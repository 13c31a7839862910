// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"time"
)

// Entry is a cached translation request.
type Entry struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	CacheKey     string `gorm:"not null;uniqueIndex"`
	Source       string `gorm:"not null"`
	Options      string `gorm:"not null"`
	Translations string `gorm:"not null"`
	Hits         int64  `gorm:"not null;default:0"`
}

// Models lists the models to auto-migrate.
var Models = []any{
	&Entry{},
}
