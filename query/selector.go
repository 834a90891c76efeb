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

package query

import "github.com/tomoncle/keel/errs"

// Selector projects an entity into a result shape. Columns optionally
// limits the columns the store loads; the mapping runs over whatever the
// store returned, after filtering and windowing.
type Selector[T any, R any] struct {
	Columns []string
	Map     func(*T) R
}

// Select builds a Selector from a mapping function and optional columns.
func Select[T any, R any](fn func(*T) R, columns ...string) Selector[T, R] {
	return Selector[T, R]{Columns: columns, Map: fn}
}

// Validate rejects a selector without a mapping function.
func (s Selector[T, R]) Validate() error {
	if s.Map == nil {
		return errs.NewArgumentError("selector", "mapping function cannot be nil")
	}
	return nil
}

// Apply maps every entity in order.
func (s Selector[T, R]) Apply(entities []*T) []R {
	out := make([]R, 0, len(entities))
	for _, e := range entities {
		out = append(out, s.Map(e))
	}
	return out
}
