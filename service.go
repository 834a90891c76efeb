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

	"github.com/tomoncle/keel/query"
	"github.com/tomoncle/keel/repository"
	"github.com/tomoncle/keel/types"
)

// Service is a per-type facade over a scope whose writes commit at once.
// Use the repository and unit of work directly to batch several changes
// into one commit.
type Service[T any] interface {
	// Get returns the first entity matching the filter, nil when none does.
	Get(ctx context.Context, filter *types.QueryFilter) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter, opts ...query.Option) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Save inserts one or more new entities and commits.
	Save(ctx context.Context, model ...*T) error

	// Update modifies existing entities and commits.
	Update(ctx context.Context, model ...*T) error

	Repository() repository.Repository[T]

	UnitOfWork() *repository.UnitOfWork
}

type baseServiceImpl[T any] struct {
	repo repository.Repository[T]
	uow  *repository.UnitOfWork
}

// NewService returns the default Service of T within the scope.
func NewService[T any](scope *Scope) Service[T] {
	return &baseServiceImpl[T]{repo: For[T](scope), uow: scope.UnitOfWork}
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, filter *types.QueryFilter) (*T, error) {
	return s.repo.FindOneWhere(ctx, filter, types.NoTracking)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.repo.All(ctx, types.NoTracking)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter, opts ...query.Option) ([]*T, error) {
	return s.repo.FindMany(ctx, query.New(opts...).With(query.Filter(filter), query.AsNoTracking()))
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.repo.Page(ctx, page, query.AsNoTracking())
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	if err := s.repo.InsertMany(ctx, model); err != nil {
		return err
	}
	_, err := s.uow.Commit(ctx)
	return err
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model ...*T) error {
	if err := s.repo.ModifyMany(model); err != nil {
		return err
	}
	_, err := s.uow.Commit(ctx)
	return err
}

func (s *baseServiceImpl[T]) Repository() repository.Repository[T] { return s.repo }

func (s *baseServiceImpl[T]) UnitOfWork() *repository.UnitOfWork { return s.uow }
