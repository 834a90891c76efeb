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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/keel/errs"
	"github.com/tomoncle/keel/types"
)

func TestZeroOptionsMatchAllTracked(t *testing.T) {
	o := New()
	require.NoError(t, o.Validate())
	assert.Nil(t, o.Filter)
	assert.True(t, o.Tracked())
	w := o.Window()
	assert.Nil(t, w.Offset)
	assert.Nil(t, w.Limit)
	assert.False(t, w.Empty())
}

func TestWindowPolicy(t *testing.T) {
	t.Run("both present is page index times page size", func(t *testing.T) {
		w := New(Skip(2), Take(5)).Window()
		require.NotNil(t, w.Offset)
		require.NotNil(t, w.Limit)
		assert.Equal(t, 10, *w.Offset)
		assert.Equal(t, 5, *w.Limit)
	})
	t.Run("skip alone is a plain offset", func(t *testing.T) {
		w := New(Skip(7)).Window()
		assert.Equal(t, 7, *w.Offset)
		assert.Nil(t, w.Limit)
	})
	t.Run("take alone is a plain limit", func(t *testing.T) {
		w := New(Take(3)).Window()
		assert.Nil(t, w.Offset)
		assert.Equal(t, 3, *w.Limit)
	})
	t.Run("page helper matches page request arithmetic", func(t *testing.T) {
		w := New(Page(3, 4)).Window()
		assert.Equal(t, types.NewDefaultPageRequest(3, 4).GetOffset(), *w.Offset)
	})
	t.Run("zero take is empty", func(t *testing.T) {
		assert.True(t, New(Take(0)).Window().Empty())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"negative skip", New(Skip(-1))},
		{"negative take", New(Take(-2))},
		{"page offset overflows", New(Page(math.MaxInt/2+1, 2))},
		{"required includes missing", New(RequireIncludes())},
		{"blank include path", New(Include("Author", " "))},
		{"blank filter schema", New(Where(""))},
		{"unknown tracking mode", New(Tracking(types.TrackingMode(7)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			require.Error(t, err)
			assert.True(t, errs.IsInvalidArgument(err))
		})
	}

	ok := New(RequireIncludes(), Include("Author"), Where("id > ?", 1), Page(0, 10), AsNoTracking())
	require.NoError(t, ok.Validate())
	assert.True(t, ok.RequiresIncludes())
	assert.False(t, ok.Tracked())
}

func TestWithDoesNotAlias(t *testing.T) {
	base := New(Include("Author"), Skip(1))
	derived := base.With(Include("Tags"), Skip(4))

	assert.Equal(t, []string{"Author"}, base.Includes)
	assert.Equal(t, 1, *base.Skip)
	assert.Equal(t, []string{"Author", "Tags"}, derived.Includes)
	assert.Equal(t, 4, *derived.Skip)
}

type book struct {
	ID    int64
	Title string
}

func TestSelector(t *testing.T) {
	sel := Select(func(b *book) string { return b.Title }, "title")
	require.NoError(t, sel.Validate())
	assert.Equal(t, []string{"title"}, sel.Columns)
	assert.Equal(t, []string{"a", "b"}, sel.Apply([]*book{{1, "a"}, {2, "b"}}))

	var empty Selector[book, string]
	assert.True(t, errs.IsInvalidArgument(empty.Validate()))
}
