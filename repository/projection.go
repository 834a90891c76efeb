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

// Projected queries are never tracked: the caller only sees the mapped
// shape, so there is nothing to write back.
func projected[T any, R any](repo Repository[T], opts query.Options, sel query.Selector[T, R]) (store.Queryable[T], query.Options, error) {
	if err := sel.Validate(); err != nil {
		return nil, opts, err
	}
	opts = opts.With(query.AsNoTracking())
	if err := opts.Validate(); err != nil {
		return nil, opts, err
	}
	q := compose(repo.Entities().Query(), opts)
	if len(sel.Columns) > 0 {
		q = q.Select(sel.Columns...)
	}
	return q, opts, nil
}

// FindManyAs runs the query described by opts and maps every result with sel.
func FindManyAs[T any, R any](ctx context.Context, repo Repository[T], opts query.Options, sel query.Selector[T, R]) ([]R, error) {
	q, opts, err := projected(repo, opts, sel)
	if err != nil {
		return nil, err
	}
	if opts.Window().Empty() {
		return make([]R, 0), nil
	}
	entities, err := q.ToList(ctx)
	if err != nil {
		return nil, err
	}
	return sel.Apply(entities), nil
}

// FindOneAs maps the first result with sel. The boolean is false when no
// row matched.
func FindOneAs[T any, R any](ctx context.Context, repo Repository[T], opts query.Options, sel query.Selector[T, R]) (R, bool, error) {
	var zero R
	q, opts, err := projected(repo, opts, sel)
	if err != nil {
		return zero, false, err
	}
	if opts.Window().Empty() {
		return zero, false, nil
	}
	entity, err := q.First(ctx)
	if err != nil || entity == nil {
		return zero, false, err
	}
	return sel.Map(entity), true, nil
}

// FindManyAsAsync is the asynchronous form of FindManyAs.
func FindManyAsAsync[T any, R any](ctx context.Context, repo Repository[T], opts query.Options, sel query.Selector[T, R]) *types.Future[[]R] {
	return types.Async(ctx, func(ctx context.Context) ([]R, error) {
		return FindManyAs(ctx, repo, opts, sel)
	})
}
