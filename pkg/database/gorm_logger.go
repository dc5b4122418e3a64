// Copyright 2025 Insightra Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"context"
	"errors"
	"time"

	"github.com/insightrix/insightra/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowThreshold = time.Second

// gormLoggerAdapter routes gorm log output through the process logger.
type gormLoggerAdapter struct {
	level gormlogger.LogLevel
}

func newGormLoggerAdapter(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLoggerAdapter{level: level}
}

func (l *gormLoggerAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLoggerAdapter{level: level}
}

func (l *gormLoggerAdapter) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		logger.InfoContext(ctx, "gorm: "+msg, "args", args)
	}
}

func (l *gormLoggerAdapter) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		logger.WarnContext(ctx, "gorm: "+msg, "args", args)
	}
}

func (l *gormLoggerAdapter) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		logger.ErrorContext(ctx, "gorm: "+msg, "args", args)
	}
}

func (l *gormLoggerAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		logger.ErrorContext(ctx, "gorm query failed",
			"error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case elapsed > slowThreshold:
		logger.WarnContext(ctx, "gorm slow query",
			"sql", sql, "rows", rows, "elapsed", elapsed)
	case l.level >= gormlogger.Info:
		logger.DebugContext(ctx, "gorm query",
			"sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
