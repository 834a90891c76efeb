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

package repository

import (
	"context"
	"sync"

	"github.com/tomoncle/keel/store"
	"github.com/tomoncle/keel/types"
)

// TxState is the transaction state of a unit of work.
type TxState int

const (
	Idle TxState = iota
	TransactionOpen
)

func (s TxState) String() string {
	switch s {
	case Idle:
		return "idle"
	case TransactionOpen:
		return "transaction_open"
	default:
		return types.IllegalName
	}
}

// UnitOfWork commits the changes staged through repositories that share its
// session and exposes explicit transaction control. Transition errors such
// as committing with no open transaction are reported by the session.
type UnitOfWork struct {
	session store.Session

	mu      sync.RWMutex
	state   TxState
	current store.Transaction
}

func NewUnitOfWork(session store.Session) *UnitOfWork {
	return &UnitOfWork{session: session}
}

// State returns the current transaction state.
func (u *UnitOfWork) State() TxState {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

// Transaction returns the open transaction handle, nil when Idle.
func (u *UnitOfWork) Transaction() store.Transaction {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.current
}

func (u *UnitOfWork) ChangeTracker() store.ChangeTracker {
	return u.session.ChangeTracker()
}

// Commit flushes every staged change and returns the number of rows written.
// Inside an open transaction the writes only become durable on CloseTransaction.
func (u *UnitOfWork) Commit(ctx context.Context) (int64, error) {
	return u.session.SaveChanges(ctx)
}

func (u *UnitOfWork) OpenTransaction(ctx context.Context) (store.Transaction, error) {
	tx, err := u.session.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	u.setState(TransactionOpen, tx)
	return tx, nil
}

// CloseTransaction commits the open transaction. The unit of work returns to
// Idle even when the commit fails, since the transaction cannot be reused.
func (u *UnitOfWork) CloseTransaction(ctx context.Context) error {
	err := u.session.CommitTransaction(ctx)
	u.setState(Idle, nil)
	return err
}

// RevertTransaction rolls back the open transaction and detaches everything
// the session tracked.
func (u *UnitOfWork) RevertTransaction(ctx context.Context) error {
	err := u.session.RollbackTransaction(ctx)
	u.setState(Idle, nil)
	return err
}

func (u *UnitOfWork) CreateStrategy() store.ExecutionStrategy {
	return u.session.CreateExecutionStrategy()
}

// DatabaseCreate ensures the schema exists, reporting whether it created anything.
func (u *UnitOfWork) DatabaseCreate(ctx context.Context) (bool, error) {
	return u.session.EnsureCreated(ctx)
}

// DatabaseDelete ensures the schema is gone, reporting whether it removed anything.
func (u *UnitOfWork) DatabaseDelete(ctx context.Context) (bool, error) {
	return u.session.EnsureDeleted(ctx)
}

func (u *UnitOfWork) CommitAsync(ctx context.Context) *types.Future[int64] {
	return types.Async(ctx, u.Commit)
}

func (u *UnitOfWork) OpenTransactionAsync(ctx context.Context) *types.Future[store.Transaction] {
	return types.Async(ctx, u.OpenTransaction)
}

func (u *UnitOfWork) CloseTransactionAsync(ctx context.Context) *types.Future[struct{}] {
	return types.Async(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, u.CloseTransaction(ctx)
	})
}

func (u *UnitOfWork) RevertTransactionAsync(ctx context.Context) *types.Future[struct{}] {
	return types.Async(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, u.RevertTransaction(ctx)
	})
}

func (u *UnitOfWork) DatabaseCreateAsync(ctx context.Context) *types.Future[bool] {
	return types.Async(ctx, u.DatabaseCreate)
}

func (u *UnitOfWork) DatabaseDeleteAsync(ctx context.Context) *types.Future[bool] {
	return types.Async(ctx, u.DatabaseDelete)
}

func (u *UnitOfWork) setState(state TxState, tx store.Transaction) {
	u.mu.Lock()
	u.state = state
	u.current = tx
	u.mu.Unlock()
}

// InTransaction runs fn inside a transaction under the session's execution
// strategy. Changes staged by fn are committed and the transaction closed
// when fn succeeds; otherwise the transaction is reverted. A retried
// attempt starts from a clean change tracker and runs fn again.
func InTransaction(ctx context.Context, u *UnitOfWork, fn func(ctx context.Context) error) error {
	return u.CreateStrategy().Execute(ctx, func(ctx context.Context) error {
		if _, err := u.OpenTransaction(ctx); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			_ = u.RevertTransaction(ctx)
			return err
		}
		if _, err := u.Commit(ctx); err != nil {
			_ = u.RevertTransaction(ctx)
			return err
		}
		return u.CloseTransaction(ctx)
	})
}
