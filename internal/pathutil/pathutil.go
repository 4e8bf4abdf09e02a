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

// Package pathutil holds the one path-splitting helper the stage and
// changelist packages both need.
package pathutil

import "strings"

// Split breaks path on '/', skipping empty segments, so "a//b/" yields
// ["a", "b"] and "" yields nil.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	raw := strings.Split(path, "/")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Join concatenates a directory path and a child name with '/', leaving
// path untouched when it is empty (the child becomes the whole path).
func Join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "/" + name
}
