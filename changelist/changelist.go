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

// Package changelist computes the set of path-level changes between two
// trees (or commits) by a parallel merge-walk of their sorted entries,
// recursing into changed subdirectories and optionally expanding whole
// added or deleted directories into their individual leaves.
package changelist

import (
	"context"
	"fmt"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/internal/pathutil"
	"github.com/quarryvcs/quarry/object"
	"github.com/quarryvcs/quarry/serialize"
	"github.com/quarryvcs/quarry/store"
)

// Action is the kind of change a path underwent.
type Action int

const (
	ActionNone Action = iota
	ActionAdd
	ActionChange
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionChange:
		return "change"
	case ActionDelete:
		return "delete"
	default:
		return "none"
	}
}

// Modifications flags which aspects of an entry changed.
type Modifications struct {
	Attributes bool
	Content    bool
	Type       bool
}

// Any reports whether any flag is set.
func (m Modifications) Any() bool {
	return m.Attributes || m.Content || m.Type
}

// Change is one path-level difference between two trees.
type Change struct {
	Action Action
	Flags  Modifications
	Type   object.EntryType
	Path   string
}

// compareEntries derives Modifications the way the data model requires:
// content differs on size or id mismatch; for two file-ish entries,
// attributes track the exec bit and type tracks symlink-ness separately;
// otherwise type is just "the kinds differ".
func compareEntries(x, y object.Entry) Modifications {
	var m Modifications
	m.Content = x.Size != y.Size || x.Id != y.Id
	if x.Type.IsRegular() && y.Type.IsRegular() {
		m.Attributes = (x.Type == object.EntryExecutable) != (y.Type == object.EntryExecutable)
		m.Type = (x.Type == object.EntrySymlink) != (y.Type == object.EntrySymlink)
	} else {
		m.Type = x.Type != y.Type
	}
	return m
}

func emptyTree() (*object.Tree, error) {
	buf, err := serialize.BuildTree(nil)
	if err != nil {
		return nil, err
	}
	obj, err := object.Load(hash.KindTree, buf)
	if err != nil {
		return nil, err
	}
	return obj.AsTree()
}

// Builder walks from-to differences between trees, calling its callback
// for every selected path.
type Builder struct {
	ds *store.Datastore
	cb func(Change)

	emitDirectoryChanged bool
	expandAdded          bool
	expandDeleted        bool
	filter               PathFilter
}

// New returns a Builder that invokes cb for each change, with the default
// policy (directory-level changes emitted, added and deleted directories
// expanded into their leaves, no path filter).
func New(ds *store.Datastore, cb func(Change)) *Builder {
	return &Builder{
		ds:                   ds,
		cb:                   cb,
		emitDirectoryChanged: true,
		expandAdded:          true,
		expandDeleted:        true,
	}
}

// Collect returns a Builder that appends every change to *changes.
func Collect(ds *store.Datastore, changes *[]Change) *Builder {
	return New(ds, func(c Change) { *changes = append(*changes, c) })
}

// SetEmitDirectoryChanged controls whether a changed directory itself (not
// just its changed leaves) produces a Change.
func (b *Builder) SetEmitDirectoryChanged(v bool) *Builder {
	b.emitDirectoryChanged = v
	return b
}

// SetExpandAdded controls whether an added directory is expanded into a
// Change per leaf, in addition to the directory's own Add.
func (b *Builder) SetExpandAdded(v bool) *Builder {
	b.expandAdded = v
	return b
}

// SetExpandDeleted controls whether a deleted directory is expanded into a
// Change per leaf, in addition to the directory's own Delete.
func (b *Builder) SetExpandDeleted(v bool) *Builder {
	b.expandDeleted = v
	return b
}

// SetInclude restricts emitted changes (and the subtrees walked into) to
// those selected by filter.
func (b *Builder) SetInclude(filter PathFilter) *Builder {
	b.filter = filter
	return b
}

func (b *Builder) getRoot(ctx context.Context, id hash.Id) (*object.Tree, error) {
	if id.IsZero() {
		return emptyTree()
	}
	treeID, err := b.ds.GetTreeId(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.ds.LoadTree(ctx, treeID)
}

// Changes walks the difference between the trees (or commits) named by
// from and to, invoking the builder's callback for each selected change.
func (b *Builder) Changes(ctx context.Context, from, to hash.Id) error {
	if from == to {
		return nil
	}

	if b.emitDirectoryChanged {
		var t1, t2 hash.Id
		var err error
		if !from.IsZero() {
			if t1, err = b.ds.GetTreeId(ctx, from); err != nil {
				return err
			}
		}
		if !to.IsZero() {
			if t2, err = b.ds.GetTreeId(ctx, to); err != nil {
				return err
			}
		}
		if t1 != t2 {
			b.emitChange("", object.EntryDirectory, Modifications{Content: true})
		}
	}

	fromTree, err := b.getRoot(ctx, from)
	if err != nil {
		return err
	}
	toTree, err := b.getRoot(ctx, to)
	if err != nil {
		return err
	}
	return b.treeChanges(ctx, "", fromTree, toTree)
}

func (b *Builder) emitAdd(path string, t object.EntryType) {
	if b.filter.Match(path) {
		b.cb(Change{Action: ActionAdd, Path: path, Type: t})
	}
}

func (b *Builder) emitChange(path string, t object.EntryType, flags Modifications) {
	if b.filter.Match(path) {
		b.cb(Change{Action: ActionChange, Path: path, Type: t, Flags: flags})
	}
}

func (b *Builder) emitDelete(path string, t object.EntryType) {
	if b.filter.Match(path) {
		b.cb(Change{Action: ActionDelete, Path: path, Type: t})
	}
}

func (b *Builder) processAdded(ctx context.Context, path string, to object.Entry) error {
	b.emitAdd(path, to.Type)
	if to.Type == object.EntryDirectory && b.expandAdded && b.filter.IsParent(path) {
		tr, err := b.ds.LoadTree(ctx, to.Id)
		if err != nil {
			return err
		}
		entries, err := tr.Entries()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := b.processAdded(ctx, pathutil.Join(path, e.Name), e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) processDeleted(ctx context.Context, path string, from object.Entry) error {
	if from.Type == object.EntryDirectory && b.expandDeleted && b.filter.IsParent(path) {
		tr, err := b.ds.LoadTree(ctx, from.Id)
		if err != nil {
			return err
		}
		entries, err := tr.Entries()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := b.processDeleted(ctx, pathutil.Join(path, e.Name), e); err != nil {
				return err
			}
		}
	}
	b.emitDelete(path, from.Type)
	return nil
}

func (b *Builder) processChanged(ctx context.Context, path string, from, to object.Entry) error {
	flags := compareEntries(from, to)
	if !flags.Any() {
		return nil
	}
	switch {
	case flags.Type:
		if err := b.processDeleted(ctx, path, from); err != nil {
			return err
		}
		return b.processAdded(ctx, path, to)
	case from.Type.IsRegular():
		b.emitChange(path, from.Type, flags)
		return nil
	case to.Type == object.EntryDirectory:
		if b.emitDirectoryChanged {
			b.emitChange(path, object.EntryDirectory, flags)
		}
		if b.filter.IsParent(path) {
			ft, err := b.ds.LoadTree(ctx, from.Id)
			if err != nil {
				return err
			}
			tt, err := b.ds.LoadTree(ctx, to.Id)
			if err != nil {
				return err
			}
			return b.treeChanges(ctx, path, ft, tt)
		}
		return nil
	default:
		return fmt.Errorf("changelist: unexpected entry types %s -> %s at %q", from.Type, to.Type, path)
	}
}

func (b *Builder) treeChanges(ctx context.Context, path string, from, to *object.Tree) error {
	fe, err := from.Entries()
	if err != nil {
		return err
	}
	te, err := to.Entries()
	if err != nil {
		return err
	}

	i, j := 0, 0
	for i < len(fe) && j < len(te) {
		switch {
		case fe[i].Name == te[j].Name:
			if err := b.processChanged(ctx, pathutil.Join(path, fe[i].Name), fe[i], te[j]); err != nil {
				return err
			}
			i++
			j++
		case fe[i].Name < te[j].Name:
			if err := b.processDeleted(ctx, pathutil.Join(path, fe[i].Name), fe[i]); err != nil {
				return err
			}
			i++
		default:
			if err := b.processAdded(ctx, pathutil.Join(path, te[j].Name), te[j]); err != nil {
				return err
			}
			j++
		}
	}
	for ; i < len(fe); i++ {
		if err := b.processDeleted(ctx, pathutil.Join(path, fe[i].Name), fe[i]); err != nil {
			return err
		}
	}
	for ; j < len(te); j++ {
		if err := b.processAdded(ctx, pathutil.Join(path, te[j].Name), te[j]); err != nil {
			return err
		}
	}
	return nil
}
