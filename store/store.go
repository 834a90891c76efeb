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

package store

import (
	"context"
	"time"

	"github.com/tomoncle/keel/types"
)

// Queryable is an immutable query over entities of type T. Every builder
// method returns a new Queryable; nothing runs until ToList, First or Count.
type Queryable[T any] interface {
	Where(filter *types.QueryFilter) Queryable[T]
	Include(path string) Queryable[T]
	Select(columns ...string) Queryable[T]
	OrderBy(exprs ...string) Queryable[T]
	Offset(n int) Queryable[T]
	Limit(n int) Queryable[T]
	AsNoTracking() Queryable[T]

	// ToList materializes every matching entity.
	ToList(ctx context.Context) ([]*T, error)
	// First materializes the first matching entity, or nil when none matches.
	First(ctx context.Context) (*T, error)
	// Count returns the number of matching rows, ignoring offset and limit.
	Count(ctx context.Context) (int, error)
}

// EntitySet is the per-type collection exposed by a session.
type EntitySet[T any] interface {
	Query() Queryable[T]
	// Add stages entities for insertion. No durable write happens.
	Add(ctx context.Context, entities ...*T) error
	// Update stages entities as modified, attaching them when untracked.
	Update(entities ...*T) error
}

// Transaction is a handle on one open transaction scope.
type Transaction interface {
	ID() string
	StartedAt() time.Time
}

// ExecutionStrategy wraps an operation in retry-on-transient-failure logic.
type ExecutionStrategy interface {
	Execute(ctx context.Context, op func(ctx context.Context) error) error
}

// Session is the unit-of-work capability of a storage session.
type Session interface {
	// SaveChanges flushes staged changes and returns the affected row count.
	SaveChanges(ctx context.Context) (int64, error)

	BeginTransaction(ctx context.Context) (Transaction, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error

	CreateExecutionStrategy() ExecutionStrategy

	// EnsureCreated creates the schema and reports whether anything was created.
	EnsureCreated(ctx context.Context) (bool, error)
	// EnsureDeleted drops the schema and reports whether anything was removed.
	EnsureDeleted(ctx context.Context) (bool, error)

	ChangeTracker() ChangeTracker
}
