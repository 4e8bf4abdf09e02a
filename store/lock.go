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

package store

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockFileName is the sentinel file a write-mode Open takes an exclusive
// lock on, living directly under the store root.
const lockFileName = "LOCK"

// RootLock guards a store root against concurrent writers from another
// process. Read-only opens never acquire one (see Open's readOnly flag).
type RootLock struct {
	path   string
	fl     *flock.Flock
	locked bool
}

// NewRootLock prepares (without acquiring) the lock file at <root>/LOCK,
// creating root if necessary.
func NewRootLock(root string) (*RootLock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, IOErrorf("store.lock.new", err)
	}
	path := filepath.Join(root, lockFileName)
	return &RootLock{path: path, fl: flock.New(path)}, nil
}

// TryLock attempts to acquire the exclusive lock without blocking. It
// returns false, nil (not an error) when another process already holds it.
func (l *RootLock) TryLock() (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, IOErrorf("store.lock.try", err)
	}
	l.locked = ok
	return ok, nil
}

// Unlock releases the lock if held. Calling it on an unlocked RootLock is a
// no-op.
func (l *RootLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return IOErrorf("store.lock.unlock", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file's location, for diagnostics.
func (l *RootLock) Path() string { return l.path }
