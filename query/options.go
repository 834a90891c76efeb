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

import (
	"fmt"
	"math"
	"strings"

	"github.com/tomoncle/keel/errs"
	"github.com/tomoncle/keel/types"
)

// Options captures the optional parts of a query request. The zero value
// matches every row, loads no relations, applies no window and tracks the
// materialized entities.
type Options struct {
	// Filter is applied first; nil means match all.
	Filter *types.QueryFilter

	// Includes names relations to eager-load, in order.
	Includes []string

	// Skip and Take are independently optional. When both are set, Skip is
	// a zero-based page index and Take the page size; see Window.
	Skip *int
	Take *int

	// Orders are caller-supplied ORDER BY expressions. No order is imposed
	// when empty.
	Orders []string

	Tracking types.TrackingMode

	requireIncludes bool
}

// Option mutates Options while building them.
type Option func(*Options)

// New builds Options from the given option functions.
func New(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// With returns a copy of o with the given options applied.
func (o Options) With(opts ...Option) Options {
	c := o.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

func (o Options) clone() Options {
	c := o
	if o.Includes != nil {
		c.Includes = append([]string(nil), o.Includes...)
	}
	if o.Orders != nil {
		c.Orders = append([]string(nil), o.Orders...)
	}
	if o.Skip != nil {
		v := *o.Skip
		c.Skip = &v
	}
	if o.Take != nil {
		v := *o.Take
		c.Take = &v
	}
	return c
}

// Where sets the filter from a where-clause schema and its arguments.
func Where(schema string, args ...interface{}) Option {
	return func(o *Options) { o.Filter = types.NewQueryFilter(schema, args...) }
}

// Filter sets a prebuilt filter. A nil filter clears it.
func Filter(f *types.QueryFilter) Option {
	return func(o *Options) { o.Filter = f }
}

// Include appends relation paths to eager-load.
func Include(paths ...string) Option {
	return func(o *Options) { o.Includes = append(o.Includes, paths...) }
}

// RequireIncludes marks the options as belonging to an entry point that
// needs at least one include path; Validate rejects them otherwise.
func RequireIncludes() Option {
	return func(o *Options) { o.requireIncludes = true }
}

func Skip(n int) Option {
	return func(o *Options) { o.Skip = &n }
}

func Take(n int) Option {
	return func(o *Options) { o.Take = &n }
}

// Page sets both Skip and Take: index is the zero-based page, size the page size.
func Page(index, size int) Option {
	return func(o *Options) {
		o.Skip = &index
		o.Take = &size
	}
}

// OrderBy appends ORDER BY expressions such as "id ASC".
func OrderBy(exprs ...string) Option {
	return func(o *Options) { o.Orders = append(o.Orders, exprs...) }
}

// AsNoTracking materializes detached, read-only entities.
func AsNoTracking() Option {
	return func(o *Options) { o.Tracking = types.NoTracking }
}

// Tracking sets the tracking mode explicitly.
func Tracking(mode types.TrackingMode) Option {
	return func(o *Options) { o.Tracking = mode }
}

// RequiresIncludes reports whether the options came from an include-requiring entry point.
func (o Options) RequiresIncludes() bool {
	return o.requireIncludes
}

// Tracked reports whether materialized entities should be attached.
func (o Options) Tracked() bool {
	return o.Tracking == types.Tracked
}

// Validate checks the option values. It never touches the store.
func (o Options) Validate() error {
	if o.Skip != nil && *o.Skip < 0 {
		return errs.NewArgumentError("skip", fmt.Sprintf("must not be negative, got %d", *o.Skip))
	}
	if o.Take != nil && *o.Take < 0 {
		return errs.NewArgumentError("take", fmt.Sprintf("must not be negative, got %d", *o.Take))
	}
	if o.Skip != nil && o.Take != nil && *o.Take > 0 {
		if maxPage := math.MaxInt / *o.Take; *o.Skip > maxPage {
			return errs.NewArgumentError("skip", fmt.Sprintf("page %d of size %d overflows the offset", *o.Skip, *o.Take))
		}
	}
	if o.requireIncludes && len(o.Includes) == 0 {
		return errs.NewArgumentError("includes", "cannot be empty")
	}
	for i, path := range o.Includes {
		if strings.TrimSpace(path) == "" {
			return errs.NewArgumentError("includes", fmt.Sprintf("path at index %d is blank", i))
		}
	}
	if o.Filter != nil && strings.TrimSpace(o.Filter.Schema) == "" {
		return errs.NewArgumentError("filter", "schema cannot be blank")
	}
	if !o.Tracking.IsValid() {
		return errs.NewArgumentError("tracking", fmt.Sprintf("unknown mode %d", int(o.Tracking)))
	}
	return nil
}
