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
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/keel/errs"
	"github.com/tomoncle/keel/store"
)

type note struct {
	ID     int
	Body   string
	Tags   []string
	Edited time.Time

	rendered string
}

func noteKey(entity any) (string, string, error) {
	n, ok := entity.(*note)
	if !ok || n == nil {
		return "", "", errs.NewArgumentError("entity", "not a note")
	}
	if n.ID == 0 {
		return "notes", "", nil
	}
	return "notes", strconv.Itoa(n.ID), nil
}

func TestTrackerAttachResolvesIdentity(t *testing.T) {
	tr := newChangeTracker(noteKey)
	first := &note{ID: 1, Body: "a"}
	got, err := tr.attach(first)
	require.NoError(t, err)
	assert.Same(t, first, got)

	again, err := tr.attach(&note{ID: 1, Body: "stale copy"})
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Len(t, tr.Entries(), 1)
	assert.Equal(t, store.Unchanged, tr.State(first))
}

func TestTrackerDetectChanges(t *testing.T) {
	tr := newChangeTracker(noteKey)
	n := &note{ID: 1, Body: "a", Tags: []string{"x"}}
	_, err := tr.attach(n)
	require.NoError(t, err)
	assert.False(t, tr.HasChanges())

	n.Tags[0] = "y"
	assert.True(t, tr.HasChanges())
	assert.Equal(t, store.Modified, tr.State(n))
}

func TestTrackerAddAndUpdate(t *testing.T) {
	tr := newChangeTracker(noteKey)
	added := &note{Body: "new"}
	require.NoError(t, tr.add(added))
	assert.Equal(t, store.Added, tr.State(added))

	require.NoError(t, tr.update(added))
	assert.Equal(t, store.Added, tr.State(added), "an added entity stays added")

	err := tr.update(&note{Body: "no key"})
	assert.True(t, errs.IsInvalidArgument(err))

	detached := &note{ID: 7, Body: "payload"}
	require.NoError(t, tr.update(detached))
	assert.Equal(t, store.Modified, tr.State(detached))

	assert.Equal(t, store.Detached, tr.State(&note{ID: 8}))
	assert.Len(t, tr.pending(), 2)
}

func TestTrackerUpdateReplacesTrackedInstance(t *testing.T) {
	tr := newChangeTracker(noteKey)
	loaded := &note{ID: 3, Body: "old"}
	_, err := tr.attach(loaded)
	require.NoError(t, err)

	replacement := &note{ID: 3, Body: "new"}
	require.NoError(t, tr.update(replacement))

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.Same(t, replacement, entries[0].Entity)
	assert.Equal(t, store.Modified, entries[0].State)
	assert.Equal(t, store.Detached, tr.State(loaded))
}

func TestTrackerAddRejectsDuplicateIdentity(t *testing.T) {
	tr := newChangeTracker(noteKey)
	_, err := tr.attach(&note{ID: 4})
	require.NoError(t, err)
	assert.True(t, errs.IsInvalidArgument(tr.add(&note{ID: 4})))
}

func TestTrackerAcceptRekeys(t *testing.T) {
	tr := newChangeTracker(noteKey)
	n := &note{Body: "generated key"}
	require.NoError(t, tr.add(n))

	n.ID = 42
	require.NoError(t, tr.accept(tr.pending()))
	assert.Equal(t, store.Unchanged, tr.State(n))
	assert.Equal(t, "42", tr.Entries()[0].Key)

	got, err := tr.attach(&note{ID: 42})
	require.NoError(t, err)
	assert.Same(t, n, got)
	assert.False(t, tr.HasChanges())
}

func TestTrackerBackupRestore(t *testing.T) {
	tr := newChangeTracker(noteKey)
	n := &note{Body: "draft", Tags: []string{"a"}}
	require.NoError(t, tr.add(n))

	backup := tr.backup(tr.pending())
	n.ID = 99
	n.Tags = append(n.Tags, "b")
	tr.restore(backup)

	assert.Equal(t, 0, n.ID)
	assert.Equal(t, []string{"a"}, n.Tags)
	assert.Equal(t, store.Added, tr.State(n))
}

func TestTrackerClear(t *testing.T) {
	tr := newChangeTracker(noteKey)
	n := &note{ID: 1}
	_, err := tr.attach(n)
	require.NoError(t, err)
	tr.clear()
	assert.Empty(t, tr.Entries())
	assert.Equal(t, store.Detached, tr.State(n))
}

func TestTrackerUpdateKeepsStagedInsert(t *testing.T) {
	tr := newChangeTracker(noteKey)
	staged := &note{ID: 77, Body: "a"}
	require.NoError(t, tr.add(staged))

	payload := &note{ID: 77, Body: "b"}
	require.NoError(t, tr.update(payload))

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.Same(t, payload, entries[0].Entity)
	assert.Equal(t, store.Added, entries[0].State)
	assert.Equal(t, store.Detached, tr.State(staged))
}

func TestTrackerDetectChangesIgnoresUnexportedFields(t *testing.T) {
	tr := newChangeTracker(noteKey)
	n := &note{ID: 5, Body: "a", Edited: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), rendered: "<p>a</p>"}
	_, err := tr.attach(n)
	require.NoError(t, err)
	assert.False(t, tr.HasChanges())

	n.rendered = "<p>cached</p>"
	assert.False(t, tr.HasChanges())

	n.Edited = n.Edited.Add(time.Minute)
	assert.True(t, tr.HasChanges())
	assert.Equal(t, store.Modified, tr.State(n))
}
