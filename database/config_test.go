/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
connection:
  type: postgres
  host: db.internal
  port: 5432
  username: keel
  dbname: inventory
  sslmode: require
  max_open_conns: 20
  slow_query_time: 500ms
session:
  max_retries: 5
  retry_base_delay: 50ms
  isolation_level: serializable
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "database.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Connection.Type)
	assert.Equal(t, "db.internal", cfg.Connection.Host)
	assert.Equal(t, 20, cfg.Connection.MaxOpenConns)
	assert.Equal(t, 500*time.Millisecond, cfg.Connection.SlowQueryTime)
	// untouched keys keep their defaults
	assert.Equal(t, 10, cfg.Connection.MaxIdleConns)
	assert.Equal(t, 5, cfg.Session.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Session.RetryBaseDelay)
	assert.Equal(t, DefaultSessionConfig().RetryMaxDelay, cfg.Session.RetryMaxDelay)
	assert.NotNil(t, cfg.Session.txOptions())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "replica.internal")
	t.Setenv("DB_PORT", "6432")
	t.Setenv("DB_ENABLE_METRICS", "true")
	t.Setenv("DB_CONN_MAX_LIFETIME", "60")
	t.Setenv("DB_MAX_RETRIES", "0")
	t.Setenv("DB_ISOLATION_LEVEL", "read_committed")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "replica.internal", cfg.Connection.Host)
	assert.Equal(t, 6432, cfg.Connection.Port)
	assert.True(t, cfg.Connection.EnableMetrics)
	assert.Equal(t, time.Minute, cfg.Connection.ConnMaxLifetime)
	assert.Zero(t, cfg.Session.MaxRetries)
	assert.Equal(t, "read_committed", cfg.Session.IsolationLevel)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "connection:\n  type: oracle\n  host: x\n  dbname: y\n"))
	assert.ErrorContains(t, err, "invalid database configuration")

	_, err = LoadConfig(writeConfig(t, "connection: [\n"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestSqliteConfigNeedsNoHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Connection.Type = "sqlite"
	cfg.Connection.DBName = ":memory:"
	assert.NoError(t, cfg.Validate())
	assert.Nil(t, cfg.Session.txOptions())
}
