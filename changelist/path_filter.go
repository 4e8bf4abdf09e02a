// Copyright 2026 The Quarry Authors
// This file is part of Quarry.
//
// Quarry is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Quarry is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Quarry. If not, see <http://www.gnu.org/licenses/>.

package changelist

import "github.com/quarryvcs/quarry/internal/pathutil"

// PathFilter restricts a changelist to paths matching a fixed set of
// segment-prefix patterns. The zero value matches everything.
type PathFilter struct {
	patterns [][]string
}

// NewPathFilter builds a filter from a set of path patterns.
func NewPathFilter(paths ...string) PathFilter {
	var f PathFilter
	for _, p := range paths {
		f.Append(p)
	}
	return f
}

// Append adds path as another accepted pattern.
func (f *PathFilter) Append(path string) {
	parts := pathutil.Split(path)
	if len(parts) == 0 {
		return
	}
	f.patterns = append(f.patterns, parts)
}

// Empty reports whether no patterns have been added.
func (f *PathFilter) Empty() bool {
	return len(f.patterns) == 0
}

// Match reports whether path itself is selected: some pattern is a full
// segment-prefix of path's segments.
func (f PathFilter) Match(path string) bool {
	if len(f.patterns) == 0 || path == "" {
		return true
	}
	parts := pathutil.Split(path)
	for _, p := range f.patterns {
		if len(p) > len(parts) {
			continue
		}
		if segmentsEqual(p, parts[:len(p)]) {
			return true
		}
	}
	return false
}

// IsParent reports whether path could contain a selected descendant: some
// pattern agrees with path over the shorter of the two segment lists. Used
// to decide whether to recurse into a directory at all.
func (f PathFilter) IsParent(path string) bool {
	if len(f.patterns) == 0 || path == "" {
		return true
	}
	parts := pathutil.Split(path)
	for _, p := range f.patterns {
		n := len(p)
		if len(parts) < n {
			n = len(parts)
		}
		if segmentsEqual(p[:n], parts[:n]) {
			return true
		}
	}
	return false
}

func segmentsEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
