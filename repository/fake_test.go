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
	"sync"
	"time"

	"github.com/tomoncle/keel/store"
	"github.com/tomoncle/keel/types"
)

type widget struct {
	ID   int
	Name string
}

func widgets(n int) []*widget {
	rows := make([]*widget, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, &widget{ID: i, Name: fmt.Sprintf("w%02d", i)})
	}
	return rows
}

// fakeSet is an in-memory entity set that records the calls reaching it.
type fakeSet struct {
	mu      sync.Mutex
	rows    []*widget
	err     error
	added   []*widget
	updated []*widget

	engineCalls int
	lastOps     []string
}

func (s *fakeSet) Query() store.Queryable[widget] {
	return &fakeQuery{set: s, offset: -1, limit: -1}
}

func (s *fakeSet) Add(ctx context.Context, entities ...*widget) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, entities...)
	return nil
}

func (s *fakeSet) Update(entities ...*widget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, entities...)
	return nil
}

func (s *fakeSet) calls() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engineCalls, s.lastOps
}

type fakeQuery struct {
	set           *fakeSet
	ops           []string
	filter        *types.QueryFilter
	offset, limit int
}

func (q *fakeQuery) with(op string, fn func(c *fakeQuery)) store.Queryable[widget] {
	c := *q
	c.ops = append(append([]string(nil), q.ops...), op)
	if fn != nil {
		fn(&c)
	}
	return &c
}

func (q *fakeQuery) Where(filter *types.QueryFilter) store.Queryable[widget] {
	return q.with("where:"+filter.Schema, func(c *fakeQuery) { c.filter = filter })
}

func (q *fakeQuery) Include(path string) store.Queryable[widget] {
	return q.with("include:"+path, nil)
}

func (q *fakeQuery) Select(columns ...string) store.Queryable[widget] {
	return q.with(fmt.Sprintf("select:%v", columns), nil)
}

func (q *fakeQuery) OrderBy(exprs ...string) store.Queryable[widget] {
	return q.with(fmt.Sprintf("order:%v", exprs), nil)
}

func (q *fakeQuery) Offset(n int) store.Queryable[widget] {
	return q.with(fmt.Sprintf("offset:%d", n), func(c *fakeQuery) { c.offset = n })
}

func (q *fakeQuery) Limit(n int) store.Queryable[widget] {
	return q.with(fmt.Sprintf("limit:%d", n), func(c *fakeQuery) { c.limit = n })
}

func (q *fakeQuery) AsNoTracking() store.Queryable[widget] {
	return q.with("no_tracking", nil)
}

func (q *fakeQuery) matches(w *widget) bool {
	if q.filter == nil || len(q.filter.Args) == 0 {
		return true
	}
	switch q.filter.Schema {
	case "id = ?":
		return w.ID == q.filter.Args[0]
	case "name = ?":
		return w.Name == q.filter.Args[0]
	}
	return true
}

func (q *fakeQuery) run(ctx context.Context, window bool) ([]*widget, error) {
	q.set.mu.Lock()
	defer q.set.mu.Unlock()
	q.set.engineCalls++
	q.set.lastOps = q.ops
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.set.err != nil {
		return nil, q.set.err
	}
	var out []*widget
	for _, w := range q.set.rows {
		if q.matches(w) {
			out = append(out, w)
		}
	}
	if !window {
		return out, nil
	}
	if q.offset > 0 {
		if q.offset >= len(out) {
			return nil, nil
		}
		out = out[q.offset:]
	}
	if q.limit >= 0 && q.limit < len(out) {
		out = out[:q.limit]
	}
	return out, nil
}

func (q *fakeQuery) ToList(ctx context.Context) ([]*widget, error) {
	return q.run(ctx, true)
}

func (q *fakeQuery) First(ctx context.Context) (*widget, error) {
	rows, err := q.run(ctx, true)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (q *fakeQuery) Count(ctx context.Context) (int, error) {
	rows, err := q.run(ctx, false)
	return len(rows), err
}

type fakeTx struct {
	id string
	at time.Time
}

func (t fakeTx) ID() string           { return t.id }
func (t fakeTx) StartedAt() time.Time { return t.at }

// fakeSession records unit of work calls in order.
type fakeSession struct {
	calls     []string
	saveErr   error
	saveFails int
	commitErr error
	begun     int
}

func (s *fakeSession) SaveChanges(context.Context) (int64, error) {
	s.calls = append(s.calls, "save")
	if s.saveFails > 0 {
		s.saveFails--
		return 0, s.saveErr
	}
	return 3, nil
}

func (s *fakeSession) BeginTransaction(context.Context) (store.Transaction, error) {
	s.calls = append(s.calls, "begin")
	s.begun++
	return fakeTx{id: fmt.Sprintf("tx-%d", s.begun), at: time.Now()}, nil
}

func (s *fakeSession) CommitTransaction(context.Context) error {
	s.calls = append(s.calls, "commit")
	return s.commitErr
}

func (s *fakeSession) RollbackTransaction(context.Context) error {
	s.calls = append(s.calls, "rollback")
	return nil
}

func (s *fakeSession) CreateExecutionStrategy() store.ExecutionStrategy {
	return retryTwice{}
}

func (s *fakeSession) EnsureCreated(context.Context) (bool, error) {
	s.calls = append(s.calls, "create")
	return true, nil
}

func (s *fakeSession) EnsureDeleted(context.Context) (bool, error) {
	s.calls = append(s.calls, "delete")
	return false, nil
}

func (s *fakeSession) ChangeTracker() store.ChangeTracker { return nil }

// retryTwice runs op at most twice.
type retryTwice struct{}

func (retryTwice) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := op(ctx); err != nil {
		return op(ctx)
	}
	return nil
}
