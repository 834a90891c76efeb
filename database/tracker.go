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
	"reflect"
	"sync"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/tomoncle/keel/errs"
	"github.com/tomoncle/keel/store"
)

// keyFunc resolves the table name and identity key of an entity pointer.
// An empty key means the entity has no identity yet, e.g. an autoincrement
// row that was never inserted.
type keyFunc func(entity any) (table string, key string, err error)

type trackedEntry struct {
	entity   any
	snapshot any
	table    string
	key      string
	state    store.EntityState
}

func (e *trackedEntry) identity() string {
	if e.key == "" {
		return ""
	}
	return e.table + "/" + e.key
}

// changeTracker is the identity map of one session. Entries keep the order
// in which they were first tracked so commits write in issue order.
type changeTracker struct {
	mu      sync.RWMutex
	keyOf   keyFunc
	entries []*trackedEntry
	byKey   map[string]*trackedEntry
	byPtr   map[any]*trackedEntry
}

var _ store.ChangeTracker = (*changeTracker)(nil)

func newChangeTracker(keyOf keyFunc) *changeTracker {
	return &changeTracker{
		keyOf: keyOf,
		byKey: make(map[string]*trackedEntry),
		byPtr: make(map[any]*trackedEntry),
	}
}

// attach tracks a materialized entity as Unchanged. When an entity with the
// same identity is already tracked, that instance is returned instead.
func (t *changeTracker) attach(entity any) (any, error) {
	table, key, err := t.keyOf(entity)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byPtr[entity]; ok {
		return e.entity, nil
	}
	e := &trackedEntry{table: table, key: key}
	if existing, ok := t.byKey[e.identity()]; ok && key != "" {
		return existing.entity, nil
	}
	e.entity = entity
	e.snapshot = deepcopy.Copy(entity)
	e.state = store.Unchanged
	t.track(e)
	return entity, nil
}

// add stages an entity for insertion.
func (t *changeTracker) add(entity any) error {
	table, key, err := t.keyOf(entity)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byPtr[entity]; ok {
		e.state = store.Added
		return nil
	}
	e := &trackedEntry{entity: entity, table: table, key: key, state: store.Added}
	if _, ok := t.byKey[e.identity()]; ok && key != "" {
		return errs.NewArgumentError("entity", "another instance with key "+key+" is already tracked in "+table)
	}
	t.track(e)
	return nil
}

// update stages an entity as Modified. An untracked entity replaces any
// tracked instance with the same identity, and its current values become
// the update payload.
func (t *changeTracker) update(entity any) error {
	table, key, err := t.keyOf(entity)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byPtr[entity]; ok {
		if e.state != store.Added {
			e.state = store.Modified
		}
		return nil
	}
	if key == "" {
		return errs.NewArgumentError("entity", "has no identity key, cannot be updated")
	}
	e := &trackedEntry{entity: entity, table: table, key: key, state: store.Modified}
	if existing, ok := t.byKey[e.identity()]; ok {
		delete(t.byPtr, existing.entity)
		existing.entity = entity
		// a staged insert stays an insert, with the new instance as payload
		if existing.state != store.Added {
			existing.state = store.Modified
		}
		t.byPtr[entity] = existing
		return nil
	}
	e.snapshot = deepcopy.Copy(entity)
	t.track(e)
	return nil
}

func (t *changeTracker) track(e *trackedEntry) {
	t.entries = append(t.entries, e)
	t.byPtr[e.entity] = e
	if id := e.identity(); id != "" {
		t.byKey[id] = e
	}
}

func (t *changeTracker) Entries() []store.Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]store.Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, store.Entry{Entity: e.entity, Table: e.table, Key: e.key, State: e.state})
	}
	return out
}

func (t *changeTracker) State(entity any) store.EntityState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.byPtr[entity]; ok {
		return e.state
	}
	return store.Detached
}

func (t *changeTracker) HasChanges() bool {
	t.DetectChanges()
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.state.Pending() {
			return true
		}
	}
	return false
}

// DetectChanges compares Unchanged entities with their snapshots.
// Unexported fields are not compared since snapshots never carry them.
func (t *changeTracker) DetectChanges() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.state == store.Unchanged && !equalExported(reflect.ValueOf(e.entity), reflect.ValueOf(e.snapshot)) {
			e.state = store.Modified
		}
	}
}

// pending returns the entries the next commit writes, in tracking order.
func (t *changeTracker) pending() []*trackedEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*trackedEntry
	for _, e := range t.entries {
		if e.state.Pending() {
			out = append(out, e)
		}
	}
	return out
}

// backup copies every Added entity so a failed commit can undo the keys and
// defaults the database wrote back into them.
func (t *changeTracker) backup(entries []*trackedEntry) map[*trackedEntry]any {
	copies := make(map[*trackedEntry]any)
	for _, e := range entries {
		if e.state == store.Added {
			copies[e] = deepcopy.Copy(e.entity)
		}
	}
	return copies
}

func (t *changeTracker) restore(copies map[*trackedEntry]any) {
	for e, c := range copies {
		reflect.ValueOf(e.entity).Elem().Set(reflect.ValueOf(c).Elem())
	}
}

// accept marks written entries Unchanged and refreshes their snapshots and
// identities.
func (t *changeTracker) accept(entries []*trackedEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		_, key, err := t.keyOf(e.entity)
		if err != nil {
			return err
		}
		if old := e.identity(); old != "" && t.byKey[old] == e {
			delete(t.byKey, old)
		}
		e.key = key
		if id := e.identity(); id != "" {
			t.byKey[id] = e
		}
		e.state = store.Unchanged
		e.snapshot = deepcopy.Copy(e.entity)
	}
	return nil
}

// clear detaches everything.
func (t *changeTracker) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.byKey = make(map[string]*trackedEntry)
	t.byPtr = make(map[any]*trackedEntry)
}

var timeType = reflect.TypeOf(time.Time{})

// equalExported compares two values the way deepcopy copies them: unexported
// struct fields are skipped and time.Time is compared by instant.
func equalExported(a, b reflect.Value) bool {
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}
	if a.Type() != b.Type() {
		return false
	}
	if a.Type() == timeType {
		return a.Interface().(time.Time).Equal(b.Interface().(time.Time))
	}
	switch a.Kind() {
	case reflect.Ptr, reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		return equalExported(a.Elem(), b.Elem())
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !a.Type().Field(i).IsExported() {
				continue
			}
			if !equalExported(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Slice:
		if a.IsNil() != b.IsNil() {
			return false
		}
		fallthrough
	case reflect.Array:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !equalExported(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if a.IsNil() != b.IsNil() || a.Len() != b.Len() {
			return false
		}
		iter := a.MapRange()
		for iter.Next() {
			other := b.MapIndex(iter.Key())
			if !other.IsValid() || !equalExported(iter.Value(), other) {
				return false
			}
		}
		return true
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == b.Uint()
	case reflect.Float32, reflect.Float64:
		return a.Float() == b.Float()
	case reflect.Complex64, reflect.Complex128:
		return a.Complex() == b.Complex()
	case reflect.String:
		return a.String() == b.String()
	case reflect.Func:
		return a.IsNil() && b.IsNil()
	default:
		return a.Pointer() == b.Pointer()
	}
}
