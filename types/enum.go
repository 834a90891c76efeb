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

package types

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// TrackingMode selects whether materialized entities are attached to the
// session's change tracker.
type TrackingMode int

const (
	// Tracked entities are attached; later mutations are picked up by a commit.
	Tracked TrackingMode = iota
	// NoTracking entities are detached and read-only from the session's view.
	NoTracking
)

var _ BaseEnum = Tracked

func (m TrackingMode) IsValid() bool { return m == Tracked || m == NoTracking }

func (m TrackingMode) Number() int {
	if !m.IsValid() {
		return IllegalValue
	}
	return int(m)
}

func (m TrackingMode) Name() string {
	switch m {
	case Tracked:
		return "tracked"
	case NoTracking:
		return "no_tracking"
	default:
		return IllegalName
	}
}

func (m TrackingMode) String() string { return m.Name() }

func (m TrackingMode) Desc() string {
	switch m {
	case Tracked:
		return "entities are attached to the change tracker"
	case NoTracking:
		return "entities are detached and read-only"
	default:
		return IllegalDesc
	}
}
