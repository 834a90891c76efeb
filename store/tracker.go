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

package store

import "github.com/tomoncle/keel/types"

// EntityState is the state of an entity in a change tracker.
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
)

var _ types.BaseEnum = Unchanged

func (s EntityState) IsValid() bool { return s >= Detached && s <= Modified }

func (s EntityState) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s EntityState) Name() string {
	switch s {
	case Detached:
		return "detached"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	default:
		return types.IllegalName
	}
}

func (s EntityState) String() string { return s.Name() }

func (s EntityState) Desc() string {
	switch s {
	case Detached:
		return "not tracked by the session"
	case Unchanged:
		return "tracked and equal to its loaded values"
	case Added:
		return "staged for insertion"
	case Modified:
		return "staged for update"
	default:
		return types.IllegalDesc
	}
}

// Pending reports whether the state will be written by the next commit.
func (s EntityState) Pending() bool {
	return s == Added || s == Modified
}

// Entry is a read-only view of one tracked entity.
type Entry struct {
	Entity any
	Table  string
	Key    string
	State  EntityState
}

// ChangeTracker is a read-only view onto a session's tracked entities.
type ChangeTracker interface {
	// Entries returns tracked entities in the order they were first tracked.
	Entries() []Entry
	// State returns the state of entity, Detached when it is not tracked.
	State(entity any) EntityState
	// HasChanges reports whether a commit would write anything.
	HasChanges() bool
	// DetectChanges marks tracked entities whose values changed as Modified.
	DetectChanges()
}
