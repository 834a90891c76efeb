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

// Window is the effective offset/limit pair handed to the store. A nil
// field means the store should not apply that clause.
type Window struct {
	Offset *int
	Limit  *int
}

// Window resolves Skip and Take into an offset/limit pair.
//
// When both are present Skip is a zero-based page index and Take the page
// size, so the window starts at Skip*Take. PageRequest uses the same rule.
// When only one is present it is applied alone as a plain offset or limit.
func (o Options) Window() Window {
	var w Window
	switch {
	case o.Skip != nil && o.Take != nil:
		offset := *o.Skip * *o.Take
		limit := *o.Take
		w.Offset, w.Limit = &offset, &limit
	case o.Skip != nil:
		offset := *o.Skip
		w.Offset = &offset
	case o.Take != nil:
		limit := *o.Take
		w.Limit = &limit
	}
	return w
}

// Empty reports whether the window can never yield a row.
func (w Window) Empty() bool {
	return w.Limit != nil && *w.Limit == 0
}
