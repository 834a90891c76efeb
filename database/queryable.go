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
	"math"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/tomoncle/keel/store"
	"github.com/tomoncle/keel/types"
)

// bunQueryable is an immutable description of a select over T. It builds
// a fresh bun.SelectQuery each time it runs.
type bunQueryable[T any] struct {
	session  *Session
	filters  []*types.QueryFilter
	includes []string
	columns  []string
	orders   []string
	offset   *int
	limit    *int
	tracked  bool
}

var _ store.Queryable[struct{}] = (*bunQueryable[struct{}])(nil)

func newQueryable[T any](s *Session) *bunQueryable[T] {
	return &bunQueryable[T]{session: s, tracked: true}
}

func (q *bunQueryable[T]) clone() *bunQueryable[T] {
	c := *q
	c.filters = append([]*types.QueryFilter(nil), q.filters...)
	c.includes = append([]string(nil), q.includes...)
	c.columns = append([]string(nil), q.columns...)
	c.orders = append([]string(nil), q.orders...)
	return &c
}

func (q *bunQueryable[T]) Where(filter *types.QueryFilter) store.Queryable[T] {
	c := q.clone()
	if filter != nil {
		c.filters = append(c.filters, filter)
	}
	return c
}

func (q *bunQueryable[T]) Include(path string) store.Queryable[T] {
	c := q.clone()
	c.includes = append(c.includes, path)
	return c
}

// Select prunes the loaded columns. Partially loaded entities are never
// tracked, since an update would write the missing columns as zero values.
func (q *bunQueryable[T]) Select(columns ...string) store.Queryable[T] {
	c := q.clone()
	c.columns = append(c.columns, columns...)
	c.tracked = false
	return c
}

func (q *bunQueryable[T]) OrderBy(exprs ...string) store.Queryable[T] {
	c := q.clone()
	c.orders = append(c.orders, exprs...)
	return c
}

func (q *bunQueryable[T]) Offset(n int) store.Queryable[T] {
	c := q.clone()
	c.offset = &n
	return c
}

func (q *bunQueryable[T]) Limit(n int) store.Queryable[T] {
	c := q.clone()
	c.limit = &n
	return c
}

func (q *bunQueryable[T]) AsNoTracking() store.Queryable[T] {
	c := q.clone()
	c.tracked = false
	return c
}

func (q *bunQueryable[T]) filtered(db bun.IDB, model interface{}) *bun.SelectQuery {
	query := db.NewSelect().Model(model)
	for _, f := range q.filters {
		query = query.Where(f.Schema, f.Args...)
	}
	return query
}

func (q *bunQueryable[T]) build(db bun.IDB, model interface{}) *bun.SelectQuery {
	query := q.filtered(db, model)
	for _, path := range q.includes {
		query = query.Relation(path)
	}
	if len(q.columns) > 0 {
		query = query.Column(q.columns...)
	}
	if len(q.orders) > 0 {
		query = query.Order(q.orders...)
	}
	if q.offset != nil {
		query = query.Offset(*q.offset)
		if q.limit == nil {
			// SQLite and MySQL reject OFFSET without LIMIT.
			switch db.Dialect().Name() {
			case dialect.SQLite:
				query = query.Limit(-1)
			case dialect.MySQL:
				query = query.Limit(math.MaxInt)
			}
		}
	}
	if q.limit != nil {
		query = query.Limit(*q.limit)
	}
	return query
}

func (q *bunQueryable[T]) emptyWindow() bool {
	return q.limit != nil && *q.limit <= 0
}

func (q *bunQueryable[T]) ToList(ctx context.Context) ([]*T, error) {
	entities := make([]*T, 0)
	if q.emptyWindow() {
		return entities, nil
	}
	release, err := q.session.enter("select")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := q.build(q.session.conn(), &entities).Scan(ctx); err != nil {
		return nil, classify("select", "", err)
	}
	if !q.tracked {
		return entities, nil
	}
	for i, e := range entities {
		got, err := q.session.tracker.attach(e)
		if err != nil {
			return nil, err
		}
		entities[i] = got.(*T)
	}
	return entities, nil
}

func (q *bunQueryable[T]) First(ctx context.Context) (*T, error) {
	if q.emptyWindow() {
		return nil, nil
	}
	release, err := q.session.enter("select")
	if err != nil {
		return nil, err
	}
	defer release()

	entity := new(T)
	if err := q.build(q.session.conn(), entity).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("select", "", err)
	}
	if !q.tracked {
		return entity, nil
	}
	got, err := q.session.tracker.attach(entity)
	if err != nil {
		return nil, err
	}
	return got.(*T), nil
}

func (q *bunQueryable[T]) Count(ctx context.Context) (int, error) {
	release, err := q.session.enter("count")
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := q.filtered(q.session.conn(), (*T)(nil)).Count(ctx)
	if err != nil {
		return 0, classify("count", "", err)
	}
	return n, nil
}
