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
	"time"
)

const dataTablePrefix = "i_"

// MySQLConfig holds MySQL connection settings. Primary/Replicas enable
// read-write separation through dbresolver.
type MySQLConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
	DBName   string   `mapstructure:"dbName"`
	Primary  []string `mapstructure:"primary"`
	Replicas []string `mapstructure:"replicas"`
}

// SQLiteConfig holds SQLite settings, used for local development and tests.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// Database is the top-level database configuration.
type Database struct {
	Driver       string       `mapstructure:"driver"` // "mysql" or "sqlite"
	MySQL        MySQLConfig  `mapstructure:"mysql"`
	SQLite       SQLiteConfig `mapstructure:"sqlite"`
	MaxOpenConns int          `mapstructure:"maxOpenConns"`
	MaxIdleConns int          `mapstructure:"maxIdleConns"`
	MaxLifetime  int          `mapstructure:"maxLifetime"` // seconds
	MaxIdleTime  int          `mapstructure:"maxIdleTime"` // seconds
	OutPut       bool         `mapstructure:"output"`      // log SQL statements
}

func (d *Database) SetDefaults() {
	if d.Driver == "" {
		d.Driver = "mysql"
	}
	if d.MaxOpenConns <= 0 {
		d.MaxOpenConns = 50
	}
	if d.MaxIdleConns <= 0 {
		d.MaxIdleConns = 10
	}
}

// buildMySQLDSN assembles a MySQL DSN from discrete settings.
func buildMySQLDSN(user, password, host string, port int, dbName string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbName)
}

// GetConnMaxLifetime converts the configured seconds with a sane default.
func GetConnMaxLifetime(seconds int) time.Duration {
	if seconds <= 0 {
		return time.Hour
	}
	return time.Duration(seconds) * time.Second
}

// GetConnMaxIdleTime converts the configured seconds with a sane default.
func GetConnMaxIdleTime(seconds int) time.Duration {
	if seconds <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(seconds) * time.Second
}
