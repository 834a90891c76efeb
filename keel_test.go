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

package keel_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/keel"
	"github.com/tomoncle/keel/database"
	"github.com/tomoncle/keel/errs"
	"github.com/tomoncle/keel/query"
	"github.com/tomoncle/keel/repository"
	"github.com/tomoncle/keel/types"
)

type category struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
}

type product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID         int64            `bun:"id,pk,autoincrement"`
	CategoryID int64            `bun:"category_id"`
	Name       string           `bun:"name,notnull"`
	Price      int              `bun:"price"`
	Attrs      types.JsonObject `bun:"attrs"`
	Category   *category        `bun:"rel:belongs-to,join:category_id=id"`
}

func registry() database.ModelRegistry {
	reg := database.NewModelRegistry()
	reg.Register(database.NewModelAdapter((*category)(nil), 1))
	reg.Register(database.NewModelAdapter((*product)(nil), 2))
	return reg
}

func openDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:keel_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	created, err := keel.NewScope(db, database.WithModelRegistry(registry())).UnitOfWork.DatabaseCreate(context.Background())
	require.NoError(t, err)
	require.True(t, created)
	return db
}

func newScope(db *bun.DB) *keel.Scope {
	return keel.NewScope(db, database.WithModelRegistry(registry()))
}

// seed commits n products named p01..pNN priced 1..n in one category.
func seed(t *testing.T, db *bun.DB, n int) *category {
	t.Helper()
	ctx := context.Background()
	scope := newScope(db)
	c := &category{Name: "tools"}
	require.NoError(t, keel.For[category](scope).InsertOne(ctx, c))
	_, err := scope.UnitOfWork.Commit(ctx)
	require.NoError(t, err)

	products := make([]*product, 0, n)
	for i := 1; i <= n; i++ {
		products = append(products, &product{CategoryID: c.ID, Name: fmt.Sprintf("p%02d", i), Price: i})
	}
	require.NoError(t, keel.For[product](scope).InsertMany(ctx, products))
	written, err := scope.UnitOfWork.Commit(ctx)
	require.NoError(t, err)
	require.EqualValues(t, n, written)
	return c
}

func names(products []*product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Name)
	}
	return out
}

func TestPagingWindows(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	seed(t, db, 25)
	repo := keel.For[product](newScope(db))
	byID := query.OrderBy("p.id ASC")

	page, err := repo.FindMany(ctx, query.New(byID, query.Page(1, 10), query.AsNoTracking()))
	require.NoError(t, err)
	require.Len(t, page, 10)
	assert.Equal(t, "p11", page[0].Name)
	assert.Equal(t, "p20", page[9].Name)

	tail, err := repo.FindMany(ctx, query.New(byID, query.Skip(20)))
	require.NoError(t, err)
	assert.Equal(t, []string{"p21", "p22", "p23", "p24", "p25"}, names(tail))

	head, err := repo.FindMany(ctx, query.New(byID, query.Take(3)))
	require.NoError(t, err)
	assert.Equal(t, []string{"p01", "p02", "p03"}, names(head))

	none, err := repo.FindMany(ctx, query.New(query.Take(0)))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = repo.FindMany(ctx, query.New(query.Skip(-1)))
	assert.True(t, errs.IsInvalidArgument(err))

	last, err := repo.Page(ctx, types.NewPageRequestWithOrders(2, 10, []string{"p.id ASC"}))
	require.NoError(t, err)
	assert.Equal(t, 25, last.Total)
	assert.Equal(t, 3, last.Pages())
	assert.False(t, last.HasNext())
	assert.Equal(t, []string{"p21", "p22", "p23", "p24", "p25"}, names(last.Items))
}

func TestFindOneAndIncludes(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	c := seed(t, db, 3)
	repo := keel.For[product](newScope(db))

	missing, err := repo.FindOneWhere(ctx, types.NewQueryFilter("p.name = ?", "nope"), types.Tracked)
	require.NoError(t, err)
	assert.Nil(t, missing)

	withCategory, err := repo.FindOneIncluding(ctx, types.NewQueryFilter("p.name = ?", "p02"), types.NoTracking, "Category")
	require.NoError(t, err)
	require.NotNil(t, withCategory)
	require.NotNil(t, withCategory.Category)
	assert.Equal(t, c.ID, withCategory.Category.ID)
	assert.Equal(t, "tools", withCategory.Category.Name)

	_, err = repo.FindIncluding(ctx, nil, types.Tracked)
	assert.True(t, errs.IsInvalidArgument(err))

	_, err = repo.FindIncluding(ctx, nil, types.Tracked, "")
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestCommittedRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	c := seed(t, db, 0)

	writer := newScope(db)
	want := &product{CategoryID: c.ID, Name: "anvil", Price: 99, Attrs: types.JsonObject{"finish": "cast iron"}}
	require.NoError(t, keel.For[product](writer).InsertOne(ctx, want))

	reader := keel.For[product](newScope(db))
	before, err := reader.All(ctx, types.NoTracking)
	require.NoError(t, err)
	assert.Empty(t, before, "staged changes are not visible to other sessions")

	_, err = writer.UnitOfWork.Commit(ctx)
	require.NoError(t, err)

	got, err := reader.FindOneWhere(ctx, types.NewQueryFilter("p.id = ?", want.ID), types.NoTracking)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackingModes(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	seed(t, db, 2)
	scope := newScope(db)
	repo := keel.For[product](scope)
	first := types.NewQueryFilter("p.name = ?", "p01")

	tracked, err := repo.FindOneWhere(ctx, first, types.Tracked)
	require.NoError(t, err)
	again, err := repo.FindOneWhere(ctx, first, types.Tracked)
	require.NoError(t, err)
	assert.Same(t, tracked, again)

	untracked, err := repo.FindOneWhere(ctx, types.NewQueryFilter("p.name = ?", "p02"), types.NoTracking)
	require.NoError(t, err)
	untracked.Price = 1000
	written, err := scope.UnitOfWork.Commit(ctx)
	require.NoError(t, err)
	assert.Zero(t, written)

	tracked.Price = 500
	written, err = scope.UnitOfWork.Commit(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, written)

	require.NoError(t, repo.ModifyOne(untracked))
	written, err = scope.UnitOfWork.Commit(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, written)

	prices, err := repository.FindManyAs(ctx, keel.For[product](newScope(db)),
		query.New(query.OrderBy("p.id ASC")),
		query.Select(func(p *product) int { return p.Price }, "price"))
	require.NoError(t, err)
	assert.Equal(t, []int{500, 1000}, prices)
}

func TestRevertTransaction(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	seed(t, db, 1)
	scope := newScope(db)
	uow := scope.UnitOfWork
	repo := keel.For[product](scope)

	_, err := uow.OpenTransaction(ctx)
	require.NoError(t, err)
	assert.Equal(t, repository.TransactionOpen, uow.State())

	p, err := repo.FindOneWhere(ctx, nil, types.Tracked)
	require.NoError(t, err)
	p.Price = 42
	require.NoError(t, repo.ModifyOne(p))
	_, err = uow.Commit(ctx)
	require.NoError(t, err)

	require.NoError(t, uow.RevertTransaction(ctx))
	assert.Equal(t, repository.Idle, uow.State())
	assert.Equal(t, 42, p.Price, "in-memory values are left as they are")
	assert.Empty(t, uow.ChangeTracker().Entries())

	stored, err := keel.For[product](newScope(db)).FindOneWhere(ctx, nil, types.NoTracking)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Price)
}

func TestInTransaction(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	c := seed(t, db, 0)
	scope := newScope(db)

	err := repository.InTransaction(ctx, scope.UnitOfWork, func(ctx context.Context) error {
		return keel.For[product](scope).InsertOne(ctx, &product{CategoryID: c.ID, Name: "vise", Price: 7})
	})
	require.NoError(t, err)
	assert.Equal(t, repository.Idle, scope.UnitOfWork.State())

	all, err := keel.For[product](newScope(db)).All(ctx, types.NoTracking)
	require.NoError(t, err)
	assert.Equal(t, []string{"vise"}, names(all))
}

func TestAsyncMatchesSync(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	seed(t, db, 5)
	repo := keel.For[product](newScope(db))
	opts := query.New(query.OrderBy("p.id ASC"), query.Take(2), query.AsNoTracking())

	sync, err := repo.FindMany(ctx, opts)
	require.NoError(t, err)
	async, err := repo.FindManyAsync(ctx, opts).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, names(sync), names(async))

	first, err := repo.FindOneAsync(ctx, opts).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p01", first.Name)
}

func TestService(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	c := seed(t, db, 0)
	svc := keel.NewService[product](newScope(db))

	p := &product{CategoryID: c.ID, Name: "chisel", Price: 12}
	require.NoError(t, svc.Save(ctx, p))
	assert.NotZero(t, p.ID)

	p.Price = 15
	require.NoError(t, svc.Update(ctx, p))

	got, err := svc.Get(ctx, types.NewQueryFilter("p.id = ?", p.ID))
	require.NoError(t, err)
	assert.Equal(t, 15, got.Price)

	listed, err := svc.List(ctx, types.NewQueryFilter("p.price > ?", 10), query.Take(5))
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	page, err := svc.Page(ctx, types.NewDefaultPageRequest(0, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	assert.True(t, errs.IsInvalidArgument(svc.Save(ctx, nil)))
}

func TestOpenWithGlobalRegistry(t *testing.T) {
	ctx := context.Background()
	keel.Register[category](1)
	keel.Register[product](2)

	cfg := database.DefaultConfig()
	cfg.Connection.Type = "sqlite"
	cfg.Connection.DBName = "file:keel_global?mode=memory&cache=shared"
	cfg.Connection.MaxOpenConns = 1
	cfg.Connection.HealthCheckInterval = 0
	require.NoError(t, keel.Open(ctx, cfg, true))
	t.Cleanup(func() { _ = keel.Close() })

	scope, err := keel.OpenScope()
	require.NoError(t, err)
	created, err := scope.UnitOfWork.DatabaseCreate(ctx)
	require.NoError(t, err)
	assert.False(t, created, "tables already created by Open")

	require.NoError(t, keel.NewService[category](scope).Save(ctx, &category{Name: "global"}))
	all, err := keel.For[category](scope).All(ctx, types.NoTracking)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	deleted, err := scope.UnitOfWork.DatabaseDelete(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)
}
