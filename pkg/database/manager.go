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
	"fmt"

	"github.com/insightrix/insightra/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

// IDatabase is the unified database handle used by the repository layer.
type IDatabase interface {
	// Database returns the gorm connection.
	Database() *gorm.DB

	// Close closes the underlying connection pool.
	Close() error
}

type managerImpl struct {
	db *gorm.DB
}

func (m *managerImpl) Database() *gorm.DB {
	return m.db
}

func (m *managerImpl) Close() error {
	if m.db == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return nil
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// NewManager creates a database manager for the configured driver.
func NewManager(cfg Database) (IDatabase, error) {
	cfg.SetDefaults()

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = newSQLiteConnection(cfg)
	default:
		db, err = newMySQLConnection(cfg.MySQL, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", cfg.Driver, err)
	}

	logger.Infow("database connected", "driver", cfg.Driver)
	return &managerImpl{db: db}, nil
}

func gormConfig(cfg Database) *gorm.Config {
	var gormLogger gormlogger.Interface
	if cfg.OutPut {
		gormLogger = newGormLoggerAdapter(gormlogger.Info)
	} else {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Silent)
	}
	return &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dataTablePrefix,
			SingularTable: true,
		},
	}
}

// newMySQLConnection creates a MySQL connection with optional DBResolver
// read-write separation.
func newMySQLConnection(mysqlCfg MySQLConfig, commonCfg Database) (*gorm.DB, error) {
	defaultDSN := buildMySQLDSN(mysqlCfg.User, mysqlCfg.Password, mysqlCfg.Host, mysqlCfg.Port, mysqlCfg.DBName)

	db, err := gorm.Open(mysql.Open(defaultDSN), gormConfig(commonCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	hasPrimary := len(mysqlCfg.Primary) > 0
	hasReplicas := len(mysqlCfg.Replicas) > 0
	if hasPrimary || hasReplicas {
		resolverConfig := dbresolver.Config{}
		if hasPrimary {
			sources, buildErr := buildDialectors(mysqlCfg.Primary)
			if buildErr != nil {
				return nil, fmt.Errorf("failed to build primary dialectors: %w", buildErr)
			}
			resolverConfig.Sources = sources
		}
		if hasReplicas {
			replicas, buildErr := buildDialectors(mysqlCfg.Replicas)
			if buildErr != nil {
				return nil, fmt.Errorf("failed to build replica dialectors: %w", buildErr)
			}
			resolverConfig.Replicas = replicas
		}
		if err := db.Use(dbresolver.Register(resolverConfig).
			SetConnMaxIdleTime(GetConnMaxIdleTime(commonCfg.MaxIdleTime)).
			SetConnMaxLifetime(GetConnMaxLifetime(commonCfg.MaxLifetime)).
			SetMaxIdleConns(commonCfg.MaxIdleConns).
			SetMaxOpenConns(commonCfg.MaxOpenConns)); err != nil {
			return nil, fmt.Errorf("failed to register DBResolver plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(commonCfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(commonCfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(GetConnMaxLifetime(commonCfg.MaxLifetime))
	sqlDB.SetConnMaxIdleTime(GetConnMaxIdleTime(commonCfg.MaxIdleTime))

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	return db, nil
}

// newSQLiteConnection opens a SQLite database, in-memory when no path is set.
func newSQLiteConnection(cfg Database) (*gorm.DB, error) {
	path := cfg.SQLite.Path
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	// SQLite serializes writers; a single connection avoids lock contention.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// buildDialectors converts DSN strings into gorm dialectors.
func buildDialectors(dsns []string) ([]gorm.Dialector, error) {
	dialectors := make([]gorm.Dialector, 0, len(dsns))
	for _, dsn := range dsns {
		if dsn == "" {
			return nil, fmt.Errorf("empty DSN in resolver configuration")
		}
		dialectors = append(dialectors, mysql.Open(dsn))
	}
	return dialectors, nil
}
