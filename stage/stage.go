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

// Package stage implements the in-memory overlay over a base tree that add,
// remove, and copy operations mutate before being serialized back into a
// new immutable tree. Directories along a mutation's path are materialized
// lazily, from the corresponding base subtree, on first touch.
package stage

import (
	"context"
	"sort"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/internal/pathutil"
	"github.com/quarryvcs/quarry/object"
	"github.com/quarryvcs/quarry/serialize"
	"github.com/quarryvcs/quarry/store"
)

type action int

const (
	actionNone action = iota
	actionAdd
	actionRemove
)

// dirEntry is one name's state inside a directory overlay: the effective
// PathEntry plus whether it was added/removed here and, if it is itself a
// directory that has been touched, the materialized subdirectory.
type dirEntry struct {
	object.PathEntry
	action action
	dir    *directory
}

// directory is one level of the overlay: a name-keyed map of dirEntry,
// iterated in sorted order wherever order is observable.
type directory struct {
	entries map[string]*dirEntry
}

func newDirectory() *directory {
	return &directory{entries: make(map[string]*dirEntry)}
}

func directoryFromTree(tr *object.Tree) (*directory, error) {
	entries, err := tr.Entries()
	if err != nil {
		return nil, err
	}
	d := newDirectory()
	for _, e := range entries {
		d.entries[e.Name] = &dirEntry{PathEntry: object.PathEntry{Entry: e}}
	}
	return d, nil
}

// find looks up name, treating a tombstoned entry as absent unless removed.
func (d *directory) find(name string, removed bool) (*dirEntry, bool) {
	e, ok := d.entries[name]
	if !ok {
		return nil, false
	}
	if e.action == actionRemove && !removed {
		return nil, false
	}
	return e, true
}

// forEach visits entries in ascending name order, skipping tombstones
// unless removed.
func (d *directory) forEach(removed bool, fn func(name string, e *dirEntry)) {
	names := make([]string, 0, len(d.entries))
	for n := range d.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		e := d.entries[n]
		if e.action != actionRemove || removed {
			fn(n, e)
		}
	}
}

// makeDirectory inserts (or resets) name as a fresh, empty directory entry,
// overwriting any prior type.
func (d *directory) makeDirectory(name string) *directory {
	e, ok := d.entries[name]
	if !ok {
		e = &dirEntry{}
		d.entries[name] = e
	} else {
		e.Id = hash.Id{}
		e.Indirect = false
		e.Size = 0
	}
	e.action = actionAdd
	e.Type = object.EntryDirectory
	sub := newDirectory()
	e.dir = sub
	return sub
}

// remove tombstones name if it carries an id, or erases it outright if it
// never got one (a directory stub created and never populated). Reports
// whether anything changed.
func (d *directory) remove(name string) bool {
	e, ok := d.entries[name]
	if !ok {
		return false
	}
	if e.action == actionRemove {
		return false
	}
	if !e.Id.IsZero() {
		e.action = actionRemove
		e.dir = nil
	} else {
		delete(d.entries, name)
	}
	return true
}

// upsert inserts or overwrites name with entry, discarding any stale
// materialized subdirectory.
func (d *directory) upsert(name string, entry object.PathEntry) bool {
	e, ok := d.entries[name]
	if !ok {
		e = &dirEntry{}
		d.entries[name] = e
	}
	e.action = actionAdd
	e.PathEntry = entry
	e.dir = nil
	return true
}

// Listed is one entry returned by ListTree: its name and effective value.
type Listed struct {
	Name  string
	Entry object.PathEntry
}

// CopySource is the provenance recorded by Copy: the source path an entry
// was copied from, within the tree the Stage was opened against. A later
// commit-construction step resolves this into a Renames.Copy once the
// source commit is known.
type CopySource struct {
	SourcePath string
}

// Stage is an overlay over the tree rooted at treeID (the zero Id for an
// empty base). It is not safe for concurrent use.
type Stage struct {
	ds     *store.Datastore
	treeID hash.Id
	root   *directory
	copies map[string]CopySource
}

// New opens a Stage over treeID. A zero treeID starts from an empty tree.
func New(ds *store.Datastore, treeID hash.Id) *Stage {
	return &Stage{ds: ds, treeID: treeID, copies: make(map[string]CopySource)}
}

func (s *Stage) mutableRoot(ctx context.Context) (*directory, error) {
	if s.root != nil {
		return s.root, nil
	}
	if s.treeID.IsZero() {
		s.root = newDirectory()
		return s.root, nil
	}
	tr, err := s.ds.LoadTree(ctx, s.treeID)
	if err != nil {
		return nil, err
	}
	d, err := directoryFromTree(tr)
	if err != nil {
		return nil, err
	}
	s.root = d
	return s.root, nil
}

// addImpl walks parts from root, materializing intermediate directories
// (from the base tree, on first touch) as needed, then upserts entry at
// the final segment.
func (s *Stage) addImpl(ctx context.Context, parts []string, entry object.PathEntry, root *directory) (bool, error) {
	for i, part := range parts {
		last := i+1 == len(parts)
		e, ok := root.find(part, false)
		if !ok {
			if last {
				return root.upsert(part, entry), nil
			}
			root = root.makeDirectory(part)
			continue
		}
		if last {
			return root.upsert(part, entry), nil
		}
		if e.dir != nil {
			root = e.dir
			continue
		}
		if e.Type == object.EntryDirectory {
			if !e.Id.IsZero() {
				tr, err := s.ds.LoadTree(ctx, e.Id)
				if err != nil {
					return false, err
				}
				sub, err := directoryFromTree(tr)
				if err != nil {
					return false, err
				}
				e.dir = sub
			} else {
				e.dir = newDirectory()
			}
			root = e.dir
			continue
		}
		// A non-directory sits where a directory is required: overwrite it.
		root = root.makeDirectory(part)
	}
	return false, nil
}

// Add sets path's entry, creating intermediate directories as needed.
// entry.Name is ignored; the path's final segment supplies the stored
// name. If a non-directory exists where a directory is required along the
// path, it is overwritten.
func (s *Stage) Add(ctx context.Context, path string, entry object.PathEntry) (bool, error) {
	parts := pathutil.Split(path)
	if len(parts) == 0 {
		return false, nil
	}
	root, err := s.mutableRoot(ctx)
	if err != nil {
		return false, err
	}
	return s.addImpl(ctx, parts, entry, root)
}

// getPathEntry resolves parts starting from the tree named by id (which
// may be the zero id, meaning "no such tree"), without touching the
// overlay.
func (s *Stage) getPathEntry(ctx context.Context, id hash.Id, parts []string) (object.PathEntry, bool, error) {
	if id.IsZero() {
		return object.PathEntry{}, false, nil
	}
	if len(parts) == 0 {
		return object.PathEntry{Entry: object.Entry{Id: id, Type: object.EntryDirectory}}, true, nil
	}
	tr, err := s.ds.LoadTree(ctx, id)
	if err != nil {
		return object.PathEntry{}, false, err
	}
	for i, part := range parts {
		e, found, err := tr.Find(part)
		if err != nil {
			return object.PathEntry{}, false, err
		}
		if !found {
			return object.PathEntry{}, false, nil
		}
		if i+1 == len(parts) {
			return object.PathEntry{Entry: e}, true, nil
		}
		if e.Type != object.EntryDirectory {
			return object.PathEntry{}, false, nil
		}
		tr, err = s.ds.LoadTree(ctx, e.Id)
		if err != nil {
			return object.PathEntry{}, false, err
		}
	}
	return object.PathEntry{}, false, nil
}

// Copy reads the entry at src from the base tree (never from the overlay)
// and adds it at dst, recording copy provenance for an eventual Renames
// object.
func (s *Stage) Copy(ctx context.Context, src, dst string) (bool, error) {
	entry, ok, err := s.getPathEntry(ctx, s.treeID, pathutil.Split(src))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	root, err := s.mutableRoot(ctx)
	if err != nil {
		return false, err
	}
	added, err := s.addImpl(ctx, pathutil.Split(dst), entry, root)
	if err != nil {
		return false, err
	}
	if added {
		s.copies[dst] = CopySource{SourcePath: src}
	}
	return added, nil
}

// GetEntry returns the effective entry at path, falling through to the
// base tree where the overlay has not touched it. With removed, a
// tombstoned entry is still returned. Path "" (the root) always reports
// the base tree's own identity, never the overlay's in-progress state.
func (s *Stage) GetEntry(ctx context.Context, path string, removed bool) (object.PathEntry, bool, error) {
	parts := pathutil.Split(path)
	if len(parts) == 0 || s.root == nil {
		if !s.treeID.IsZero() {
			return s.getPathEntry(ctx, s.treeID, parts)
		}
		return object.PathEntry{Entry: object.Entry{Type: object.EntryDirectory}}, true, nil
	}

	cur := s.root
	for i, part := range parts {
		e, ok := cur.find(part, removed)
		if !ok {
			break
		}
		if i+1 == len(parts) {
			return e.PathEntry, true, nil
		}
		if e.dir != nil {
			cur = e.dir
			continue
		}
		if e.Type == object.EntryDirectory {
			return s.getPathEntry(ctx, e.Id, parts[i+1:])
		}
		break
	}
	return object.PathEntry{}, false, nil
}

// ListTree enumerates the effective children of path.
func (s *Stage) ListTree(ctx context.Context, path string, removed bool) ([]Listed, error) {
	parts := pathutil.Split(path)

	listDirectory := func(d *directory) []Listed {
		var out []Listed
		d.forEach(removed, func(name string, e *dirEntry) {
			out = append(out, Listed{Name: name, Entry: e.PathEntry})
		})
		return out
	}
	listTreeEntries := func(treeID hash.Id, rest []string) ([]Listed, error) {
		pe, ok, err := s.getPathEntry(ctx, treeID, rest)
		if err != nil {
			return nil, err
		}
		if !ok || pe.Type != object.EntryDirectory {
			return nil, nil
		}
		tr, err := s.ds.LoadTree(ctx, pe.Id)
		if err != nil {
			return nil, err
		}
		entries, err := tr.Entries()
		if err != nil {
			return nil, err
		}
		out := make([]Listed, 0, len(entries))
		for _, e := range entries {
			out = append(out, Listed{Name: e.Name, Entry: object.PathEntry{Entry: e}})
		}
		return out, nil
	}

	if len(parts) == 0 && s.root != nil {
		return listDirectory(s.root), nil
	}
	if s.root == nil {
		return listTreeEntries(s.treeID, parts)
	}

	cur := s.root
	for i, part := range parts {
		e, ok := cur.find(part, removed)
		if !ok {
			break
		}
		if i+1 == len(parts) {
			if e.dir != nil {
				return listDirectory(e.dir), nil
			}
			if e.Type == object.EntryDirectory {
				return listTreeEntries(e.Id, nil)
			}
			break
		}
		if e.dir != nil {
			cur = e.dir
			continue
		}
		if e.Type == object.EntryDirectory {
			return listTreeEntries(e.Id, parts[i+1:])
		}
		break
	}
	return nil, nil
}

// Remove tombstones path, materializing directories along the way as
// needed. Reports whether anything changed.
func (s *Stage) Remove(ctx context.Context, path string) (bool, error) {
	parts := pathutil.Split(path)
	if len(parts) == 0 {
		return false, nil
	}
	cur, err := s.mutableRoot(ctx)
	if err != nil {
		return false, err
	}
	for i, part := range parts {
		if i+1 == len(parts) {
			if cur.remove(part) {
				delete(s.copies, path)
				return true, nil
			}
			return false, nil
		}
		e, ok := cur.find(part, false)
		if !ok {
			break
		}
		if e.dir != nil {
			cur = e.dir
			continue
		}
		if e.Type == object.EntryDirectory {
			tr, err := s.ds.LoadTree(ctx, e.Id)
			if err != nil {
				return false, err
			}
			sub, err := directoryFromTree(tr)
			if err != nil {
				return false, err
			}
			e.dir = sub
			cur = sub
			continue
		}
		break
	}
	return false, nil
}

// saveTreeImpl recursively serializes dir into a canonical tree, returning
// its id and whether it should be linked into its parent at all (false
// means an empty subtree that keepEmptyDirs says to drop).
func (s *Stage) saveTreeImpl(ctx context.Context, dir *directory, keepEmptyDirs bool) (hash.Id, bool, error) {
	var entries []object.Entry
	var outerErr error

	dir.forEach(false, func(name string, e *dirEntry) {
		if outerErr != nil {
			return
		}
		entry := object.Entry{Name: name}
		switch {
		case e.dir != nil:
			subID, ok, err := s.saveTreeImpl(ctx, e.dir, keepEmptyDirs)
			if err != nil {
				outerErr = err
				return
			}
			if !ok {
				return
			}
			entry.Type = object.EntryDirectory
			entry.Id = subID
		case e.Type == object.EntryDirectory && e.Id.IsZero():
			if !keepEmptyDirs {
				return
			}
			empty, err := serialize.BuildTree(nil)
			if err != nil {
				outerErr = err
				return
			}
			emptyID, _, err := s.ds.Put(ctx, hash.KindTree, empty)
			if err != nil {
				outerErr = err
				return
			}
			entry.Type = object.EntryDirectory
			entry.Id = emptyID
		default:
			entry.Type = e.Type
			entry.Id = e.Id
			entry.Size = e.Size
		}
		entries = append(entries, entry)
	})
	if outerErr != nil {
		return hash.Id{}, false, outerErr
	}
	if len(entries) == 0 && !keepEmptyDirs {
		return hash.Id{}, false, nil
	}

	buf, err := serialize.BuildTree(entries)
	if err != nil {
		return hash.Id{}, false, err
	}
	id, _, err := s.ds.Put(ctx, hash.KindTree, buf)
	if err != nil {
		return hash.Id{}, false, err
	}
	return id, true, nil
}

// SaveTree serializes the overlay bottom-up into new Tree objects and
// returns the resulting root id, which always names a valid (non-null)
// tree even when the overlay was never mutated or collapses to empty.
func (s *Stage) SaveTree(ctx context.Context, keepEmptyDirs bool) (hash.Id, error) {
	id := s.treeID
	if s.root != nil {
		savedID, ok, err := s.saveTreeImpl(ctx, s.root, keepEmptyDirs)
		if err != nil {
			return hash.Id{}, err
		}
		if ok {
			id = savedID
		} else {
			id = hash.Id{}
		}
	}
	if !id.IsZero() {
		return id, nil
	}
	empty, err := serialize.BuildTree(nil)
	if err != nil {
		return hash.Id{}, err
	}
	emptyID, _, err := s.ds.Put(ctx, hash.KindTree, empty)
	if err != nil {
		return hash.Id{}, err
	}
	return emptyID, nil
}

// Copies returns the destination-to-source map recorded by Copy so far.
func (s *Stage) Copies() map[string]CopySource {
	out := make(map[string]CopySource, len(s.copies))
	for k, v := range s.copies {
		out[k] = v
	}
	return out
}
