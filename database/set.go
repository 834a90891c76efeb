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

	"github.com/tomoncle/keel/errs"
	"github.com/tomoncle/keel/store"
)

type entitySet[T any] struct {
	session *Session
}

// Set returns the entity set of T bound to the session.
func Set[T any](s *Session) store.EntitySet[T] {
	return &entitySet[T]{session: s}
}

func (e *entitySet[T]) Query() store.Queryable[T] {
	return newQueryable[T](e.session)
}

// Add stages entities as Added. It only touches the change tracker.
func (e *entitySet[T]) Add(ctx context.Context, entities ...*T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, entity := range entities {
		if entity == nil {
			return errs.NewArgumentError("entity", "cannot be nil")
		}
	}
	for _, entity := range entities {
		if err := e.session.tracker.add(entity); err != nil {
			return err
		}
	}
	return nil
}

// Update stages entities as Modified, attaching untracked ones.
func (e *entitySet[T]) Update(entities ...*T) error {
	for _, entity := range entities {
		if entity == nil {
			return errs.NewArgumentError("entity", "cannot be nil")
		}
	}
	for _, entity := range entities {
		if err := e.session.tracker.update(entity); err != nil {
			return err
		}
	}
	return nil
}
