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
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tomoncle/keel/errs"
	"github.com/tomoncle/keel/store"
)

// Session is a Bun-backed storage session: one change tracker, at most one
// open transaction, and one operation at a time.
type Session struct {
	db       *bun.DB
	config   SessionConfig
	registry ModelRegistry
	logger   Logger
	tracker  *changeTracker

	mu   sync.RWMutex
	tx   *transaction
	busy atomic.Bool
}

var _ store.Session = (*Session)(nil)

// SessionOption configures a Session.
type SessionOption func(*Session)

func WithSessionConfig(cfg SessionConfig) SessionOption {
	return func(s *Session) { s.config = cfg }
}

func WithModelRegistry(registry ModelRegistry) SessionOption {
	return func(s *Session) { s.registry = registry }
}

func WithLogger(logger Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession opens a session over db. Sessions are cheap; open one per
// concurrent flow of control.
func NewSession(db *bun.DB, opts ...SessionOption) *Session {
	s := &Session{
		db:       db,
		config:   *DefaultSessionConfig(),
		registry: defaultRegistry,
		logger:   GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracker = newChangeTracker(s.keyOf)
	return s
}

// DB returns the underlying Bun database.
func (s *Session) DB() *bun.DB { return s.db }

type transaction struct {
	id        string
	startedAt time.Time
	tx        bun.Tx
}

func (t *transaction) ID() string           { return t.id }
func (t *transaction) StartedAt() time.Time { return t.startedAt }

// enter claims the session for one operation.
func (s *Session) enter(op string) (func(), error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, errs.NewStoreError(op, errs.ErrConcurrentUse)
	}
	return func() { s.busy.Store(false) }, nil
}

// conn returns the open transaction, or the database when none is open.
func (s *Session) conn() bun.IDB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tx != nil {
		return s.tx.tx
	}
	return s.db
}

func (s *Session) current() *transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tx
}

func (s *Session) ChangeTracker() store.ChangeTracker { return s.tracker }

// keyOf derives the table name and primary key string of an entity pointer
// from its Bun table metadata.
func (s *Session) keyOf(entity any) (string, string, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return "", "", errs.NewArgumentError("entity", fmt.Sprintf("must be a non-nil struct pointer, got %T", entity))
	}
	strct := v.Elem()
	table := s.db.Table(strct.Type())
	if len(table.PKs) == 0 {
		return table.Name, "", nil
	}
	parts := make([]string, 0, len(table.PKs))
	for _, pk := range table.PKs {
		fv := pk.Value(strct)
		if fv.IsZero() {
			return table.Name, "", nil
		}
		parts = append(parts, fmt.Sprint(fv.Interface()))
	}
	return table.Name, strings.Join(parts, ","), nil
}

// SaveChanges writes every Added and Modified entity in tracking order.
// Without an explicit transaction the writes run in their own transaction.
// Inside one they run under a savepoint so a failure leaves the outer
// transaction usable. On failure the tracker and the Added entities are
// left exactly as they were.
func (s *Session) SaveChanges(ctx context.Context) (int64, error) {
	release, err := s.enter("save")
	if err != nil {
		return 0, err
	}
	defer release()

	s.tracker.DetectChanges()
	pending := s.tracker.pending()
	if len(pending) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, errs.NewStoreError("save", err)
	}

	backup := s.tracker.backup(pending)
	var affected int64
	write := func(ctx context.Context, db bun.IDB) error {
		affected = 0
		for _, e := range pending {
			n, err := s.write(ctx, db, e)
			if err != nil {
				return err
			}
			affected += n
		}
		return nil
	}

	if tx := s.current(); tx != nil {
		err = s.withSavepoint(ctx, tx.tx, write)
	} else {
		err = s.db.RunInTx(ctx, s.config.txOptions(), func(ctx context.Context, tx bun.Tx) error {
			return write(ctx, tx)
		})
	}
	if err != nil {
		s.tracker.restore(backup)
		s.logger.Warn("Save changes failed", "entries", len(pending), "error", err)
		return 0, classify("save", "", err)
	}
	if err := s.tracker.accept(pending); err != nil {
		return affected, err
	}
	s.logger.Debug("Changes saved", "entries", len(pending), "rows", affected)
	return affected, nil
}

func (s *Session) write(ctx context.Context, db bun.IDB, e *trackedEntry) (int64, error) {
	switch e.state {
	case store.Added:
		res, err := db.NewInsert().Model(e.entity).Exec(ctx)
		if err != nil {
			return 0, classify("insert", e.table, err)
		}
		return rowsAffected(res, 1), nil
	case store.Modified:
		res, err := db.NewUpdate().Model(e.entity).WherePK().Exec(ctx)
		if err != nil {
			return 0, classify("update", e.table, err)
		}
		n := rowsAffected(res, 1)
		if n == 0 {
			return 0, errs.NewConflictError("update", e.table,
				fmt.Errorf("no row matched key %s", e.key))
		}
		return n, nil
	}
	return 0, nil
}

func rowsAffected(res interface{ RowsAffected() (int64, error) }, fallback int64) int64 {
	if res == nil {
		return fallback
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fallback
	}
	return n
}

const savepointName = "keel_save_changes"

func (s *Session) withSavepoint(ctx context.Context, tx bun.Tx, fn func(context.Context, bun.IDB) error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			s.logger.Error("Failed to roll back to savepoint", "error", rbErr)
		}
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName)
	return err
}

func (s *Session) BeginTransaction(ctx context.Context) (store.Transaction, error) {
	release, err := s.enter("begin")
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return nil, errs.NewStoreError("begin", errs.ErrTransactionOpen)
	}
	tx, err := s.db.BeginTx(ctx, s.config.txOptions())
	if err != nil {
		return nil, classify("begin", "", err)
	}
	s.tx = &transaction{id: uuid.NewString(), startedAt: time.Now(), tx: tx}
	s.logger.Debug("Transaction started", "tx", s.tx.id)
	return s.tx, nil
}

// CommitTransaction commits the open transaction. The transaction is closed
// whatever the outcome; a failed commit detaches every tracked entity like
// a rollback does.
func (s *Session) CommitTransaction(ctx context.Context) error {
	release, err := s.enter("commit")
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return errs.NewStoreError("commit", errs.ErrNoTransaction)
	}
	tx := s.tx
	s.tx = nil
	if err := ctx.Err(); err != nil {
		_ = tx.tx.Rollback()
		s.tracker.clear()
		return errs.NewStoreError("commit", err)
	}
	if err := tx.tx.Commit(); err != nil {
		s.tracker.clear()
		s.logger.Error("Transaction commit failed", "tx", tx.id, "error", err)
		return classify("commit", "", err)
	}
	s.logger.Debug("Transaction committed", "tx", tx.id, "elapsed", time.Since(tx.startedAt))
	return nil
}

// RollbackTransaction rolls back the open transaction and detaches every
// tracked entity, since their snapshots may describe rolled back writes.
func (s *Session) RollbackTransaction(ctx context.Context) error {
	release, err := s.enter("rollback")
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return errs.NewStoreError("rollback", errs.ErrNoTransaction)
	}
	tx := s.tx
	s.tx = nil
	s.tracker.clear()
	if err := tx.tx.Rollback(); err != nil {
		s.logger.Error("Transaction rollback failed", "tx", tx.id, "error", err)
		return classify("rollback", "", err)
	}
	s.logger.Debug("Transaction rolled back", "tx", tx.id)
	return nil
}

func (s *Session) CreateExecutionStrategy() store.ExecutionStrategy {
	return newRetryStrategy(s.config, s.logger)
}

// EnsureCreated creates the table of every registered model that does not
// exist yet, in priority order. It refuses to run inside a transaction.
func (s *Session) EnsureCreated(ctx context.Context) (bool, error) {
	release, err := s.enter("ensure_created")
	if err != nil {
		return false, err
	}
	defer release()
	if s.current() != nil {
		return false, errs.NewStoreError("ensure_created", errs.ErrTransactionOpen)
	}

	created := false
	for _, model := range s.registry.Models() {
		exists, err := s.tableExists(ctx, model.Instance())
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		if _, err := s.db.NewCreateTable().Model(model.Instance()).IfNotExists().Exec(ctx); err != nil {
			return created, classify("create_table", "", err)
		}
		s.logger.Info("Table created", "model", fmt.Sprintf("%T", model.Instance()))
		created = true
	}
	return created, nil
}

// EnsureDeleted drops the table of every registered model that exists, in
// reverse priority order. It refuses to run inside a transaction.
func (s *Session) EnsureDeleted(ctx context.Context) (bool, error) {
	release, err := s.enter("ensure_deleted")
	if err != nil {
		return false, err
	}
	defer release()
	if s.current() != nil {
		return false, errs.NewStoreError("ensure_deleted", errs.ErrTransactionOpen)
	}

	models := s.registry.Models()
	deleted := false
	for i := len(models) - 1; i >= 0; i-- {
		instance := models[i].Instance()
		exists, err := s.tableExists(ctx, instance)
		if err != nil {
			return deleted, err
		}
		if !exists {
			continue
		}
		if _, err := s.db.NewDropTable().Model(instance).IfExists().Exec(ctx); err != nil {
			return deleted, classify("drop_table", "", err)
		}
		s.logger.Info("Table dropped", "model", fmt.Sprintf("%T", instance))
		deleted = true
	}
	if deleted {
		s.tracker.clear()
	}
	return deleted, nil
}

func (s *Session) tableExists(ctx context.Context, model any) (bool, error) {
	_, err := s.db.NewSelect().Model(model).Count(ctx)
	if err == nil {
		return true, nil
	}
	if is, kind := IsSqlError(err); is && kind == NoTableErr {
		return false, nil
	}
	return false, classify("table_exists", "", err)
}
