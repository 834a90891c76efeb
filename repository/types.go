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

	"github.com/tomoncle/keel/query"
	"github.com/tomoncle/keel/store"
	"github.com/tomoncle/keel/types"
)

// QueryRepository composes query options against the entity set and
// materializes the result.
type QueryRepository[T any] interface {
	FindMany(ctx context.Context, opts query.Options) ([]*T, error)

	FindOne(ctx context.Context, opts query.Options) (*T, error)

	FindManyAsync(ctx context.Context, opts query.Options) *types.Future[[]*T]

	FindOneAsync(ctx context.Context, opts query.Options) *types.Future[*T]

	All(ctx context.Context, mode types.TrackingMode) ([]*T, error)

	Find(ctx context.Context, filter *types.QueryFilter, mode types.TrackingMode) ([]*T, error)

	FindIncluding(ctx context.Context, filter *types.QueryFilter, mode types.TrackingMode, paths ...string) ([]*T, error)

	FindPage(ctx context.Context, filter *types.QueryFilter, skip, take int, mode types.TrackingMode) ([]*T, error)

	FindOneWhere(ctx context.Context, filter *types.QueryFilter, mode types.TrackingMode) (*T, error)

	FindOneIncluding(ctx context.Context, filter *types.QueryFilter, mode types.TrackingMode, paths ...string) (*T, error)

	Page(ctx context.Context, page *types.PageRequest, opts ...query.Option) (*types.Pagination[T], error)
}

// MutationRepository stages inserts and updates in the session. Nothing is
// written until the unit of work commits.
type MutationRepository[T any] interface {
	InsertOne(ctx context.Context, entity *T) error
	InsertMany(ctx context.Context, entities []*T) error
	ModifyOne(entity *T) error
	ModifyMany(entities []*T) error

	InsertOneAsync(ctx context.Context, entity *T) *types.Future[struct{}]
	InsertManyAsync(ctx context.Context, entities []*T) *types.Future[struct{}]
	ModifyOneAsync(ctx context.Context, entity *T) *types.Future[struct{}]
	ModifyManyAsync(ctx context.Context, entities []*T) *types.Future[struct{}]
}

// Repository combines querying and staging and exposes the underlying
// entity set for advanced use cases.
type Repository[T any] interface {
	QueryRepository[T]
	MutationRepository[T]
	Entities() store.EntitySet[T]
}
