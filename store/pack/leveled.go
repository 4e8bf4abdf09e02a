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

package pack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/quarryvcs/quarry/config"
	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/metrics"
	"github.com/quarryvcs/quarry/store"
	"github.com/quarryvcs/quarry/store/cache"
)

const backendName = "pack"

// Leveled is the compacting pack store: a Level 0 of memtables feeding
// sorted immutable packs, which in turn size-tier compact into higher
// levels. A single RWMutex guards the mutable memtable/level lists;
// individual packs are immutable after creation and need no locking to
// read.
type Leveled struct {
	mu sync.RWMutex

	snapDir string
	packDir string
	cfg     config.Store
	metrics *metrics.Store

	active    *activeMemtable
	finalized []*finalizedMemtable // oldest first
	seq       int

	levels map[int][]*Pack

	baseCache *cache.Memory
	readOnly  bool
	lock      *store.RootLock
}

// Open restores (or creates) a leveled store rooted at root. In read-only
// mode no memtable is opened for writing, no lock is taken, and every
// discovered pack is loaded into a single flattened view; writes are
// rejected. Read-only mode also loads finalized memtables but does not read
// the active memtable file (memtable.part), so records not yet rotated out
// of it are not visible. A write-mode Open takes an exclusive store.RootLock on
// <root>/LOCK for the lifetime of the returned Leveled, failing if another
// process already holds it.
func Open(root string, cfg config.Store, m *metrics.Store, readOnly bool) (*Leveled, error) {
	snapDir := filepath.Join(root, "snap")
	packDir := filepath.Join(root, "pack")

	l := &Leveled{
		snapDir:   snapDir,
		packDir:   packDir,
		cfg:       cfg,
		metrics:   m,
		levels:    make(map[int][]*Pack),
		baseCache: cache.New(cfg.CacheCapacityBytes, m),
		readOnly:  readOnly,
	}

	if !readOnly {
		lock, err := store.NewRootLock(root)
		if err != nil {
			return nil, err
		}
		ok, err := lock.TryLock()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, store.IOErrorf("pack.open", fmt.Errorf("store root %s is locked by another writer", root))
		}
		l.lock = lock

		if err := os.MkdirAll(snapDir, 0o755); err != nil {
			l.lock.Unlock()
			return nil, store.IOErrorf("pack.open", err)
		}
		if err := os.MkdirAll(packDir, 0o755); err != nil {
			l.lock.Unlock()
			return nil, store.IOErrorf("pack.open", err)
		}
	}

	if err := l.restoreFinalizedMemtables(); err != nil {
		l.unlockOnFailure()
		return nil, err
	}
	if err := l.restorePacks(); err != nil {
		l.unlockOnFailure()
		return nil, err
	}
	if readOnly {
		l.flattenForReadOnly()
		return l, nil
	}

	activePath := filepath.Join(snapDir, "memtable.part")
	active, err := openActiveMemtable(activePath, cfg.MemtableCapacityBytes, true)
	if err != nil {
		l.unlockOnFailure()
		return nil, err
	}
	l.active = active
	return l, nil
}

// unlockOnFailure releases a just-acquired root lock when Open fails partway
// through restoring state, so a retry or another process is not left stuck
// behind a lock nothing is holding the store open with.
func (l *Leveled) unlockOnFailure() {
	if l.lock != nil {
		l.lock.Unlock()
	}
}

func (l *Leveled) restoreFinalizedMemtables() error {
	entries, err := os.ReadDir(l.snapDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return store.IOErrorf("pack.open", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "memtable.") && e.Name() != "memtable.part" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fm, err := openFinalizedMemtable(filepath.Join(l.snapDir, name))
		if err != nil {
			return err
		}
		l.finalized = append(l.finalized, fm)
		if n, err := strconv.Atoi(strings.TrimPrefix(name, "memtable.")); err == nil && n >= l.seq {
			l.seq = n + 1
		}
	}
	return nil
}

func (l *Leveled) restorePacks() error {
	entries, err := os.ReadDir(l.packDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return store.IOErrorf("pack.open", err)
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".pack") {
			continue
		}
		packPath := filepath.Join(l.packDir, e.Name())
		indexPath := strings.TrimSuffix(packPath, ".pack") + ".index"
		p, err := OpenPack(packPath, indexPath, l.baseCache)
		if err != nil {
			return err
		}
		l.levels[p.level] = append(l.levels[p.level], p)
	}
	return nil
}

// flattenForReadOnly merges every discovered level into level 0, matching
// §4.6's read-only-mode behavior of presenting one flat pack set.
func (l *Leveled) flattenForReadOnly() {
	var all []*Pack
	for _, packs := range l.levels {
		all = append(all, packs...)
	}
	l.levels = map[int][]*Pack{0: all}
}

// Put appends content to the active memtable, rotating (and packing, if
// Level 0 is now full) as needed.
func (l *Leveled) Put(_ context.Context, kind hash.Kind, content []byte) (hash.Id, error) {
	if l.readOnly {
		return hash.Id{}, store.InvalidArgumentf("pack.put", "store is read-only")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := l.active.put(kind, content)
	if errors.Is(err, ErrTableFull) {
		if err := l.rotateLocked(); err != nil {
			return hash.Id{}, err
		}
		id, err = l.active.put(kind, content)
	}
	if err != nil {
		l.observe("put", "error")
		return hash.Id{}, err
	}
	l.observe("put", "written")
	return id, nil
}

// rotateLocked seals the active memtable and opens a fresh one. Caller
// must hold the writer lock.
func (l *Leveled) rotateLocked() error {
	finalizedPath := filepath.Join(l.snapDir, fmt.Sprintf("memtable.%05d", l.seq))
	l.seq++
	fm, err := finalize(l.active, finalizedPath)
	if err != nil {
		return err
	}
	l.finalized = append(l.finalized, fm)

	activePath := filepath.Join(l.snapDir, "memtable.part")
	active, err := openActiveMemtable(activePath, l.cfg.MemtableCapacityBytes, true)
	if err != nil {
		return err
	}
	l.active = active

	if len(l.finalized) >= l.cfg.SnapshotsToPack {
		if err := l.packLevel0Locked(); err != nil {
			return err
		}
	}
	return nil
}

// packLevel0Locked folds every finalized memtable into one new Level 0
// pack. Caller must hold the writer lock.
func (l *Leveled) packLevel0Locked() error {
	var refs []ObjectRef
	var oldPaths []string
	for _, fm := range l.finalized {
		for id := range fm.ids {
			h, payload, ok, err := fm.get(id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			refs = append(refs, ObjectRef{Id: id, Kind: h.Kind, Payload: payload})
		}
		oldPaths = append(oldPaths, fm.path)
	}
	refs = Dedup(refs)

	opts := WriteOptions{
		TryLZ4:             true,
		DeltaEnabled:       l.cfg.DeltaEnabled,
		DeltaMinObjectSize: l.cfg.DeltaMinObjectBytes,
		DeltaKeepRatio:     l.cfg.DeltaKeepRatio,
		DeltaWindow:        l.cfg.DeltaWindow,
		DeltaMaxChainDepth: l.cfg.DeltaMaxChainDepth,
	}
	packPath, indexPath, err := Write(l.packDir, 0, refs, opts)
	if err != nil {
		return err
	}
	p, err := OpenPack(packPath, indexPath, l.baseCache)
	if err != nil {
		return err
	}
	l.levels[0] = append(l.levels[0], p)

	for _, fm := range l.finalized {
		fm.close()
	}
	for _, path := range oldPaths {
		os.Remove(path)
	}
	l.finalized = nil

	return l.compactOverfullLocked(0)
}

// compactOverfullLocked merges a level's packs into one when it has
// reached snapshots_to_pack packs, placing the result at
// ⌊log_snapshots_to_pack(total_bytes / memtable_size)⌋, clamped to be at
// least level+1.
func (l *Leveled) compactOverfullLocked(level int) error {
	for len(l.levels[level]) >= l.cfg.SnapshotsToPack {
		packs := l.levels[level]
		var refs []ObjectRef
		var totalBytes uint64
		var oldPaths []string
		for _, p := range packs {
			for _, id := range p.Ids() {
				kind, payload, ok, err := p.Load(id, l.crossPackResolver(p))
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				refs = append(refs, ObjectRef{Id: id, Kind: kind, Payload: payload})
				totalBytes += uint64(len(payload))
			}
			oldPaths = append(oldPaths, p.path, p.indexPath)
		}
		refs = Dedup(refs)

		target := level + 1
		if l.cfg.SnapshotsToPack > 1 && l.cfg.MemtableCapacityBytes > 0 {
			computed := int(math.Log(float64(totalBytes)/float64(l.cfg.MemtableCapacityBytes)) / math.Log(float64(l.cfg.SnapshotsToPack)))
			if computed > target {
				target = computed
			}
		}

		opts := WriteOptions{TryLZ4: true, DeltaEnabled: false}
		packPath, indexPath, err := Write(l.packDir, target, refs, opts)
		if err != nil {
			return err
		}
		merged, err := OpenPack(packPath, indexPath, l.baseCache)
		if err != nil {
			return err
		}

		for _, p := range packs {
			p.Close()
		}
		for _, path := range oldPaths {
			os.Remove(path)
		}
		delete(l.levels, level)
		l.levels[target] = append(l.levels[target], merged)
		if l.metrics != nil {
			l.metrics.Compaction(0)
		}

		level = target
	}
	return nil
}

// crossPackResolver builds a Resolver that looks everywhere except exclude
// for a delta base id: the rest of the same level, other levels, finalized
// memtables, and the active memtable.
func (l *Leveled) crossPackResolver(exclude *Pack) Resolver {
	return func(id hash.Id) (hash.Kind, []byte, bool, error) {
		return l.lookupExcept(id, exclude)
	}
}

func (l *Leveled) lookupExcept(id hash.Id, exclude *Pack) (hash.Kind, []byte, bool, error) {
	if l.active != nil {
		if e, ok := l.active.get(id); ok {
			return e.kind, e.payload, true, nil
		}
	}
	for i := len(l.finalized) - 1; i >= 0; i-- {
		if h, payload, ok, err := l.finalized[i].get(id); err == nil && ok {
			return h.Kind, payload, true, nil
		}
	}
	for _, packs := range l.levels {
		for _, p := range packs {
			if p == exclude {
				continue
			}
			if kind, payload, ok, err := p.Load(id, nil); err == nil && ok {
				return kind, payload, true, nil
			}
		}
	}
	return 0, nil, false, nil
}

// Commit forces the active memtable's file to flush.
func (l *Leveled) Commit() error {
	if l.readOnly {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.commit()
}

func (l *Leveled) GetMeta(_ context.Context, id hash.Id) (store.Meta, bool, error) {
	if !l.readOnly {
		l.mu.RLock()
		defer l.mu.RUnlock()
	}
	if l.active != nil {
		if e, ok := l.active.get(id); ok {
			return store.Meta{Kind: e.kind, Size: uint64(len(e.payload))}, true, nil
		}
	}
	for i := len(l.finalized) - 1; i >= 0; i-- {
		if h, payload, ok, err := l.finalized[i].get(id); err != nil {
			return store.Meta{}, false, err
		} else if ok {
			return store.Meta{Kind: h.Kind, Size: uint64(len(payload))}, true, nil
		}
	}
	for _, level := range l.sortedLevels() {
		for _, p := range l.levels[level] {
			if m, ok := p.GetMeta(id); ok {
				return m, true, nil
			}
		}
	}
	return store.Meta{}, false, nil
}

func (l *Leveled) Exists(ctx context.Context, id hash.Id) (bool, error) {
	_, ok, err := l.GetMeta(ctx, id)
	return ok, err
}

func (l *Leveled) Load(_ context.Context, id hash.Id) (store.LoadResult, bool, error) {
	if !l.readOnly {
		l.mu.RLock()
		defer l.mu.RUnlock()
	}
	if l.active != nil {
		if e, ok := l.active.get(id); ok {
			l.observe("load", "hit")
			return store.LoadResult{Kind: e.kind, Payload: e.payload}, true, nil
		}
	}
	for i := len(l.finalized) - 1; i >= 0; i-- {
		if h, payload, ok, err := l.finalized[i].get(id); err != nil {
			return store.LoadResult{}, false, err
		} else if ok {
			l.observe("load", "hit")
			return store.LoadResult{Kind: h.Kind, Payload: payload}, true, nil
		}
	}
	for _, level := range l.sortedLevels() {
		for _, p := range l.levels[level] {
			kind, payload, ok, err := p.Load(id, l.crossPackResolver(p))
			if err != nil {
				return store.LoadResult{}, false, err
			}
			if ok {
				l.observe("load", "hit")
				return store.LoadResult{Kind: kind, Payload: payload}, true, nil
			}
		}
	}
	l.observe("load", "miss")
	return store.LoadResult{}, false, nil
}

func (l *Leveled) sortedLevels() []int {
	out := make([]int, 0, len(l.levels))
	for lv := range l.levels {
		out = append(out, lv)
	}
	sort.Ints(out)
	return out
}

func (l *Leveled) observe(op, outcome string) {
	if l.metrics != nil {
		l.metrics.Op(backendName, op, outcome)
	}
}

// Close releases every open file handle and memory map, and the root lock
// if this Leveled was opened for writes.
func (l *Leveled) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active != nil {
		l.active.close()
	}
	for _, fm := range l.finalized {
		fm.close()
	}
	for _, packs := range l.levels {
		for _, p := range packs {
			p.Close()
		}
	}
	if l.lock != nil {
		return l.lock.Unlock()
	}
	return nil
}
