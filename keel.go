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

package keel

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/tomoncle/keel/database"
	"github.com/tomoncle/keel/repository"
)

// NewRepository returns a repository of T bound to the session.
func NewRepository[T any](s *database.Session) repository.Repository[T] {
	return repository.NewRepository[T](database.Set[T](s))
}

// NewUnitOfWork returns the unit of work of the session.
func NewUnitOfWork(s *database.Session) *repository.UnitOfWork {
	return repository.NewUnitOfWork(s)
}

// Scope pairs one session with its unit of work. A scope must be used by a
// single flow of control at a time; open one scope per concurrent flow.
type Scope struct {
	Session    *database.Session
	UnitOfWork *repository.UnitOfWork
}

// NewScope opens a scope over db.
func NewScope(db *bun.DB, opts ...database.SessionOption) *Scope {
	return newScope(database.NewSession(db, opts...))
}

// OpenScope opens a scope over the global database opened by Open.
func OpenScope(opts ...database.SessionOption) (*Scope, error) {
	s, err := database.OpenSession(opts...)
	if err != nil {
		return nil, err
	}
	return newScope(s), nil
}

func newScope(s *database.Session) *Scope {
	return &Scope{Session: s, UnitOfWork: NewUnitOfWork(s)}
}

// For returns the repository of T within the scope.
func For[T any](scope *Scope) repository.Repository[T] {
	return NewRepository[T](scope.Session)
}

// Register adds T to the models whose tables DatabaseCreate and
// DatabaseDelete manage.
func Register[T any](priority int) {
	database.RegisterModel[T](priority)
}

// Open connects the global database described by cfg and creates the
// tables of registered models when ensureCreated is set.
func Open(ctx context.Context, cfg *database.Config, ensureCreated bool) error {
	_, err := database.InitDB(ctx, cfg, ensureCreated)
	return err
}

// Close closes the global database.
func Close() error {
	return database.CloseDB()
}
