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
	"fmt"

	"github.com/tomoncle/keel/errs"
	"github.com/tomoncle/keel/query"
	"github.com/tomoncle/keel/store"
	"github.com/tomoncle/keel/types"
)

type baseRepositoryImpl[T any] struct {
	set store.EntitySet[T]
}

// NewRepository returns a generic repository over the given entity set.
func NewRepository[T any](set store.EntitySet[T]) Repository[T] {
	return &baseRepositoryImpl[T]{set: set}
}

func (r *baseRepositoryImpl[T]) Entities() store.EntitySet[T] { return r.set }

// compose applies the options in evaluation order: filter, includes,
// ordering, window, tracking. It performs no I/O.
func compose[T any](q store.Queryable[T], opts query.Options) store.Queryable[T] {
	if opts.Filter != nil {
		q = q.Where(opts.Filter)
	}
	for _, path := range opts.Includes {
		q = q.Include(path)
	}
	if len(opts.Orders) > 0 {
		q = q.OrderBy(opts.Orders...)
	}
	w := opts.Window()
	if w.Offset != nil {
		q = q.Offset(*w.Offset)
	}
	if w.Limit != nil {
		q = q.Limit(*w.Limit)
	}
	if !opts.Tracked() {
		q = q.AsNoTracking()
	}
	return q
}

func (r *baseRepositoryImpl[T]) FindMany(ctx context.Context, opts query.Options) ([]*T, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Window().Empty() {
		return make([]*T, 0), nil
	}
	entities, err := compose(r.set.Query(), opts).ToList(ctx)
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = make([]*T, 0)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) FindOne(ctx context.Context, opts query.Options) (*T, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Window().Empty() {
		return nil, nil
	}
	return compose(r.set.Query(), opts).First(ctx)
}

func (r *baseRepositoryImpl[T]) FindManyAsync(ctx context.Context, opts query.Options) *types.Future[[]*T] {
	return types.Async(ctx, func(ctx context.Context) ([]*T, error) {
		return r.FindMany(ctx, opts)
	})
}

func (r *baseRepositoryImpl[T]) FindOneAsync(ctx context.Context, opts query.Options) *types.Future[*T] {
	return types.Async(ctx, func(ctx context.Context) (*T, error) {
		return r.FindOne(ctx, opts)
	})
}

func (r *baseRepositoryImpl[T]) All(ctx context.Context, mode types.TrackingMode) ([]*T, error) {
	return r.FindMany(ctx, query.New(query.Tracking(mode)))
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, filter *types.QueryFilter, mode types.TrackingMode) ([]*T, error) {
	return r.FindMany(ctx, query.New(query.Filter(filter), query.Tracking(mode)))
}

func (r *baseRepositoryImpl[T]) FindIncluding(ctx context.Context, filter *types.QueryFilter, mode types.TrackingMode, paths ...string) ([]*T, error) {
	return r.FindMany(ctx, query.New(
		query.Filter(filter),
		query.Tracking(mode),
		query.Include(paths...),
		query.RequireIncludes(),
	))
}

func (r *baseRepositoryImpl[T]) FindPage(ctx context.Context, filter *types.QueryFilter, skip, take int, mode types.TrackingMode) ([]*T, error) {
	return r.FindMany(ctx, query.New(query.Filter(filter), query.Page(skip, take), query.Tracking(mode)))
}

func (r *baseRepositoryImpl[T]) FindOneWhere(ctx context.Context, filter *types.QueryFilter, mode types.TrackingMode) (*T, error) {
	return r.FindOne(ctx, query.New(query.Filter(filter), query.Tracking(mode)))
}

func (r *baseRepositoryImpl[T]) FindOneIncluding(ctx context.Context, filter *types.QueryFilter, mode types.TrackingMode, paths ...string) (*T, error) {
	return r.FindOne(ctx, query.New(
		query.Filter(filter),
		query.Tracking(mode),
		query.Include(paths...),
		query.RequireIncludes(),
	))
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest, opts ...query.Option) (*types.Pagination[T], error) {
	if pageRequest == nil {
		return nil, errs.NewArgumentError("page", "page request cannot be nil")
	}
	options := query.New(opts...).With(
		query.Filter(pageRequest.GetFilter()),
		query.OrderBy(pageRequest.GetOrders()...),
		query.Page(pageRequest.GetPage(), pageRequest.GetPageSize()),
	)
	if err := options.Validate(); err != nil {
		return nil, err
	}

	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	counter := r.set.Query()
	if options.Filter != nil {
		counter = counter.Where(options.Filter)
	}
	total, err := counter.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	items, err := r.FindMany(ctx, options)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) InsertOne(ctx context.Context, entity *T) error {
	if entity == nil {
		return errs.NewArgumentError("entity", "cannot be nil")
	}
	return r.set.Add(ctx, entity)
}

func (r *baseRepositoryImpl[T]) InsertMany(ctx context.Context, entities []*T) error {
	if err := checkEntities(entities); err != nil {
		return err
	}
	if len(entities) == 0 {
		return nil
	}
	return r.set.Add(ctx, entities...)
}

func (r *baseRepositoryImpl[T]) ModifyOne(entity *T) error {
	if entity == nil {
		return errs.NewArgumentError("entity", "cannot be nil")
	}
	return r.set.Update(entity)
}

func (r *baseRepositoryImpl[T]) ModifyMany(entities []*T) error {
	if err := checkEntities(entities); err != nil {
		return err
	}
	if len(entities) == 0 {
		return nil
	}
	return r.set.Update(entities...)
}

func (r *baseRepositoryImpl[T]) InsertOneAsync(ctx context.Context, entity *T) *types.Future[struct{}] {
	return types.Async(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.InsertOne(ctx, entity)
	})
}

func (r *baseRepositoryImpl[T]) InsertManyAsync(ctx context.Context, entities []*T) *types.Future[struct{}] {
	return types.Async(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.InsertMany(ctx, entities)
	})
}

func (r *baseRepositoryImpl[T]) ModifyOneAsync(ctx context.Context, entity *T) *types.Future[struct{}] {
	return types.Async(ctx, func(ctx context.Context) (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, r.ModifyOne(entity)
	})
}

func (r *baseRepositoryImpl[T]) ModifyManyAsync(ctx context.Context, entities []*T) *types.Future[struct{}] {
	return types.Async(ctx, func(ctx context.Context) (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, r.ModifyMany(entities)
	})
}

func checkEntities[T any](entities []*T) error {
	for i, e := range entities {
		if e == nil {
			return errs.NewArgumentError("entities", fmt.Sprintf("entity at index %d is nil", i))
		}
	}
	return nil
}
