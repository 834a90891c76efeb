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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

var errNotConnected = errors.New("database not connected")

type defaultDatabaseManager struct {
	config          *ConnectionConfig
	session         SessionConfig
	registerer      prometheus.Registerer
	db              *bun.DB
	sqlDB           *sql.DB
	logger          Logger
	mu              sync.RWMutex
	connected       bool
	lastError       error
	healthStatus    *HealthStatus
	stopHealthCheck chan struct{}
	healthDone      chan struct{}
	healthCheckOnce sync.Once
	healthRunning   bool
	stopOnce        sync.Once
}

// ManagerOption configures the database manager.
type ManagerOption func(*defaultDatabaseManager)

// WithManagerSessionConfig sets the configuration of sessions opened by the manager.
func WithManagerSessionConfig(cfg SessionConfig) ManagerOption {
	return func(dm *defaultDatabaseManager) { dm.session = cfg }
}

// WithRegisterer sets where query metrics are registered when enabled.
func WithRegisterer(reg prometheus.Registerer) ManagerOption {
	return func(dm *defaultDatabaseManager) { dm.registerer = reg }
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun.
// If config is nil, a sensible default configuration is used.
func NewDatabaseManager(config *ConnectionConfig, opts ...ManagerOption) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	dm := &defaultDatabaseManager{
		config:          config,
		session:         *DefaultSessionConfig(),
		registerer:      prometheus.DefaultRegisterer,
		logger:          nopLogger{},
		healthStatus:    &HealthStatus{},
		stopHealthCheck: make(chan struct{}),
		healthDone:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(dm)
	}
	return dm
}

func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.connected && dm.db != nil {
		return nil
	}
	if err := dm.connectLocked(ctx); err != nil {
		return err
	}
	if dm.config.HealthCheckInterval > 0 {
		dm.startHealthCheck()
	}
	return nil
}

func (dm *defaultDatabaseManager) connectLocked(ctx context.Context) error {
	sqlDB, db, err := dm.createConnection()
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	dm.sqlDB, dm.db = sqlDB, db
	dm.configureConnectionPool()

	ctxTimeout, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()

	if err := dm.db.PingContext(ctxTimeout); err != nil {
		dm.lastError = err
		_ = dm.db.Close()
		dm.db, dm.sqlDB = nil, nil
		return fmt.Errorf("database connection test failed: %w", err)
	}

	dm.connected = true
	dm.lastError = nil
	dm.logger.Info("Database connected successfully", "type", dm.config.Type, "host", dm.config.Host, "dbname", dm.config.DBName)
	return nil
}

// driver describes how one database type is opened.
type driver struct {
	name    string
	dialect func() schema.Dialect
	dsn     func(cfg *ConnectionConfig) string
}

var drivers = map[string]driver{
	"mysql":      {name: "mysql", dialect: func() schema.Dialect { return mysqldialect.New() }, dsn: mysqlDSN},
	"postgres":   {name: "postgres", dialect: func() schema.Dialect { return pgdialect.New() }, dsn: postgresDSN},
	"postgresql": {name: "postgres", dialect: func() schema.Dialect { return pgdialect.New() }, dsn: postgresDSN},
	"sqlite":     {name: sqliteshim.ShimName, dialect: func() schema.Dialect { return sqlitedialect.New() }, dsn: func(cfg *ConnectionConfig) string { return sqliteDSN(cfg.DBName) }},
	"sqlite3":    {name: sqliteshim.ShimName, dialect: func() schema.Dialect { return sqlitedialect.New() }, dsn: func(cfg *ConnectionConfig) string { return sqliteDSN(cfg.DBName) }},
}

func (dm *defaultDatabaseManager) createConnection() (*sql.DB, *bun.DB, error) {
	if dm.config.ConnectTimeout <= 0 {
		dm.config.ConnectTimeout = 30 * time.Second
	}
	drv, ok := drivers[dm.config.Type]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported database type: %s", dm.config.Type)
	}
	sqlDB, err := sql.Open(drv.name, drv.dsn(dm.config))
	if err != nil {
		return nil, nil, err
	}
	db := bun.NewDB(sqlDB, drv.dialect())

	if dm.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{slowTime: dm.config.SlowQueryTime, logger: dm.logger})
	}
	if dm.config.EnableMetrics {
		hook, err := NewMetricsHook(dm.registerer)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to register query metrics: %w", err)
		}
		db.AddQueryHook(hook)
	}
	return sqlDB, db, nil
}

// mysqlDSN sets clientFoundRows so an UPDATE reports matched rows; an
// update that writes identical values must not look like a lost row.
func mysqlDSN(cfg *ConnectionConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true&timeout=%s&readTimeout=%s&writeTimeout=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		cfg.ConnectTimeout, cfg.ReadTimeout, cfg.WriteTimeout)
}

func postgresDSN(cfg *ConnectionConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		sslMode, int(cfg.ConnectTimeout.Seconds()))
}

// sqliteDSN maps a database name to a file DSN. In-memory and file: DSNs
// are used verbatim.
func sqliteDSN(name string) string {
	if strings.HasPrefix(name, "file:") || strings.Contains(name, ":memory:") || strings.HasSuffix(name, ".db") {
		return name
	}
	return name + ".db"
}

func (dm *defaultDatabaseManager) configureConnectionPool() {
	if dm.sqlDB == nil {
		return
	}
	dm.sqlDB.SetMaxIdleConns(dm.config.MaxIdleConns)
	dm.sqlDB.SetMaxOpenConns(dm.config.MaxOpenConns)
	dm.sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
	dm.sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)
}

// Disconnect stops the health check and closes the connection pool.
func (dm *defaultDatabaseManager) Disconnect() error {
	dm.stopHealthLoop()

	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.closeLocked()
}

func (dm *defaultDatabaseManager) closeLocked() error {
	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db = nil
	dm.sqlDB = nil
	dm.connected = false
	if err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
	} else {
		dm.logger.Info("Database connection closed")
	}
	return err
}

func (dm *defaultDatabaseManager) stopHealthLoop() {
	dm.stopOnce.Do(func() { close(dm.stopHealthCheck) })
	dm.mu.RLock()
	running := dm.healthRunning
	dm.mu.RUnlock()
	if running {
		<-dm.healthDone
	}
}

// Reconnect replaces the connection pool, retrying with exponential backoff
// up to MaxReconnectTries times.
func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.logger.Info("Attempting to reconnect to the database")

	b := backoff.NewExponentialBackOff()
	if dm.config.ReconnectInterval > 0 {
		b.InitialInterval = dm.config.ReconnectInterval
	}
	b.MaxElapsedTime = 0
	tries := dm.config.MaxReconnectTries
	if tries < 0 {
		tries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(tries)), ctx) // #nosec G115 -- tries clamped above

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		dm.mu.Lock()
		defer dm.mu.Unlock()
		if err := dm.closeLocked(); err != nil {
			dm.logger.Warn("Error disconnecting existing connection", "error", err)
		}
		if err := dm.connectLocked(ctx); err != nil {
			dm.logger.Error("Reconnect failed", "error", err, "try", attempt)
			return err
		}
		dm.logger.Info("Reconnect succeeded", "try", attempt)
		return nil
	}, policy)
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	dm.mu.RLock()
	db := dm.db
	dm.mu.RUnlock()

	if db == nil {
		return errNotConnected
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

// NewSession opens a session over the managed connection.
func (dm *defaultDatabaseManager) NewSession(opts ...SessionOption) (*Session, error) {
	db := dm.GetDB()
	if db == nil {
		return nil, errNotConnected
	}
	dm.mu.RLock()
	base := []SessionOption{WithSessionConfig(dm.session), WithLogger(dm.logger)}
	dm.mu.RUnlock()
	return NewSession(db, append(base, opts...)...), nil
}

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	start := time.Now()
	status := &HealthStatus{
		LastCheckTime: start,
		Connected:     dm.connected,
	}

	if dm.db == nil {
		status.LastError = "Database not initialized"
		dm.healthStatus = status
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	err := dm.db.PingContext(ctxTimeout)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.Connected = false
		status.LastError = err.Error()
		dm.lastError = err
	} else {
		status.Healthy = true
		status.Connected = true
		dm.lastError = nil
	}

	if dm.sqlDB != nil {
		stats := dm.sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}

	dm.healthStatus = status
	return status
}

func (dm *defaultDatabaseManager) startHealthCheck() {
	dm.healthCheckOnce.Do(func() {
		dm.healthRunning = true
		go func() {
			defer close(dm.healthDone)
			ticker := time.NewTicker(dm.config.HealthCheckInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
					status := dm.HealthCheck(ctx)
					if !status.Healthy && dm.config.EnableReconnect {
						if err := dm.Reconnect(ctx); err != nil {
							dm.logger.Error("Max reconnect attempts reached", "error", err)
						}
					}
					cancel()
				case <-dm.stopHealthCheck:
					return
				}
			}
		}()
	})
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	dm.mu.RLock()
	sqlDB := dm.sqlDB
	dm.mu.RUnlock()

	if sqlDB == nil {
		return &DBStats{}
	}
	return toDBStats(sqlDB.Stats())
}

func toDBStats(stats sql.DBStats) *DBStats {
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}
