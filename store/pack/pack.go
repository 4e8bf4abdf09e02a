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
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/edsrzf/mmap-go"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/internal/delta"
	"github.com/quarryvcs/quarry/internal/similarity"
	"github.com/quarryvcs/quarry/store"
	"github.com/quarryvcs/quarry/store/cache"
)

// ObjectRef is one fully-materialized object offered to the pack writer:
// either freshly rotated out of a memtable, or read back whole from an
// input pack during compaction.
type ObjectRef struct {
	Id      hash.Id
	Kind    hash.Kind
	Payload []byte
}

// WriteOptions controls delta encoding and compression during pack
// writing. Compaction passes DeltaEnabled=false (merge never re-deltifies).
type WriteOptions struct {
	TryLZ4             bool
	DeltaEnabled       bool
	DeltaMinObjectSize uint64
	DeltaKeepRatio     float64
	DeltaWindow        int
	DeltaMaxChainDepth int
}

// similarityCandidate is one entry in a type's sliding delta-base window.
type similarityCandidate struct {
	id     hash.Id
	digest similarity.Digest
	offset uint64
	depth  int
	raw    []byte
}

// Write streams refs (already deduplicated by the caller, see Dedup) into a
// new .pack/.index pair under dir at the given level, returns their final
// paths.
func Write(dir string, level int, refs []ObjectRef, opts WriteOptions) (packPath, indexPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", store.IOErrorf("pack.write", err)
	}
	ordered := emissionOrder(refs)

	tmpPack, err := os.CreateTemp(dir, ".tmp-pack-*")
	if err != nil {
		return "", "", store.IOErrorf("pack.write", err)
	}
	tmpPackName := tmpPack.Name()
	defer func() {
		if err != nil {
			tmpPack.Close()
			os.Remove(tmpPackName)
		}
	}()

	windows := map[hash.Kind][]similarityCandidate{}
	entries := make([]indexEntry, 0, len(ordered))
	var offset uint64
	h := sha1.New()

	for _, ref := range ordered {
		var record []byte
		deltified := false
		chosenDepth := 0
		if opts.DeltaEnabled && eligibleForDelta(ref, opts) {
			if rec, baseDepth, ok := tryDelta(ref, windows[ref.Kind], opts); ok {
				record = rec
				deltified = true
				chosenDepth = baseDepth + 1
			}
		}
		if !deltified {
			record, err = encodePlainRecord(ref.Kind, ref.Payload, opts.TryLZ4)
			if err != nil {
				return "", "", store.Corruptf("pack.write", "encode %s: %w", ref.Id, err)
			}
		}
		if _, err = tmpPack.Write(record); err != nil {
			return "", "", store.IOErrorf("pack.write", err)
		}
		h.Write(record)
		entries = append(entries, indexEntry{id: ref.Id, kind: ref.Kind, finalSize: uint64(len(ref.Payload)), offset: offset})
		offset += uint64(len(record))

		if eligibleForDelta(ref, opts) {
			windows[ref.Kind] = pushWindow(windows[ref.Kind], similarityCandidate{
				id:     ref.Id,
				digest: similarity.Compute(ref.Payload),
				offset: entries[len(entries)-1].offset,
				depth:  chosenDepth,
				raw:    ref.Payload,
			}, opts.DeltaWindow)
		}
	}
	if err = tmpPack.Close(); err != nil {
		return "", "", store.IOErrorf("pack.write", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id.Less(entries[j].id) })
	indexBytes := encodeIndex(entries)
	tmpIndex, err := os.CreateTemp(dir, ".tmp-index-*")
	if err != nil {
		return "", "", store.IOErrorf("pack.write", err)
	}
	tmpIndexName := tmpIndex.Name()
	defer func() {
		if err != nil {
			tmpIndex.Close()
			os.Remove(tmpIndexName)
		}
	}()
	if _, err = tmpIndex.Write(indexBytes); err != nil {
		return "", "", store.IOErrorf("pack.write", err)
	}
	if err = tmpIndex.Close(); err != nil {
		return "", "", store.IOErrorf("pack.write", err)
	}

	contentHash := hex.EncodeToString(h.Sum(nil))
	packPath = filepath.Join(dir, fmt.Sprintf("pack-%s.%03d.pack", contentHash, level))
	indexPath = filepath.Join(dir, fmt.Sprintf("pack-%s.%03d.index", contentHash, level))
	if err = os.Rename(tmpPackName, packPath); err != nil {
		return "", "", store.IOErrorf("pack.write", err)
	}
	if err = os.Rename(tmpIndexName, indexPath); err != nil {
		return "", "", store.IOErrorf("pack.write", err)
	}

	if verifyErr := validate(packPath, indexPath, entries); verifyErr != nil {
		return "", "", verifyErr
	}
	return packPath, indexPath, nil
}

func validate(packPath, indexPath string, entries []indexEntry) error {
	p, err := OpenPack(packPath, indexPath, nil)
	if err != nil {
		return store.Corruptf("pack.write", "validate: reopen: %w", err)
	}
	defer p.Close()
	for _, e := range entries {
		if _, ok := p.index.find(e.id); !ok {
			return store.Corruptf("pack.write", "validate: id %s missing after write", e.id)
		}
	}
	return nil
}

func eligibleForDelta(ref ObjectRef, opts WriteOptions) bool {
	min := opts.DeltaMinObjectSize
	if min == 0 {
		min = 64
	}
	return (ref.Kind == hash.KindBlob || ref.Kind == hash.KindTree) && uint64(len(ref.Payload)) >= min
}

func pushWindow(window []similarityCandidate, c similarityCandidate, limit int) []similarityCandidate {
	window = append(window, c)
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	return window
}

// tryDelta scans window for the closest-similarity candidate and attempts a
// generic delta against it, keeping the result only if it beats
// opts.DeltaKeepRatio of the original size.
func tryDelta(ref ObjectRef, window []similarityCandidate, opts WriteOptions) (record []byte, baseDepth int, ok bool) {
	if len(window) == 0 {
		return nil, 0, false
	}
	target := similarity.Compute(ref.Payload)
	best := -1
	bestDist := 0
	for i, c := range window {
		if c.depth >= opts.DeltaMaxChainDepth {
			continue
		}
		d := similarity.Distance(target, c.digest)
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best == -1 {
		return nil, 0, false
	}
	base := window[best]
	deltaBytes := delta.Encode(base.raw, ref.Payload)
	ratio := float64(len(deltaBytes)) / float64(len(ref.Payload))
	if ratio >= opts.DeltaKeepRatio {
		return nil, 0, false
	}
	rec, err := encodeDeltaRecord(ref.Kind, base.id, uint64(len(ref.Payload)), deltaBytes, opts.TryLZ4)
	if err != nil {
		return nil, 0, false
	}
	return rec, base.depth, true
}

// emissionOrder groups refs so similar objects land near each other:
// commits, then renames, then trees (largest first), then blobs (largest
// first); ties broken by id.
func emissionOrder(refs []ObjectRef) []ObjectRef {
	out := append([]ObjectRef(nil), refs...)
	rank := func(k hash.Kind) int {
		switch k {
		case hash.KindCommit:
			return 0
		case hash.KindRenames:
			return 1
		case hash.KindTree:
			return 2
		case hash.KindBlob:
			return 3
		default:
			return 4
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank(out[i].Kind), rank(out[j].Kind)
		if ri != rj {
			return ri < rj
		}
		if ri == 2 || ri == 3 { // trees, blobs: largest first
			if len(out[i].Payload) != len(out[j].Payload) {
				return len(out[i].Payload) > len(out[j].Payload)
			}
		}
		return out[i].Id.Less(out[j].Id)
	})
	return out
}

// Dedup sorts refs by id and keeps only the last occurrence of each,
// mirroring "later portions shadow earlier ones" using an id-ordered
// collection pass.
func Dedup(refs []ObjectRef) []ObjectRef {
	byID := newIDTree()
	for _, r := range refs {
		byID.set(r)
	}
	return byID.ordered()
}

// Pack is an opened, immutable .pack/.index pair: the .pack file is
// memory-mapped read-only and the .index file is read whole into memory;
// both are shared across all readers without locking.
type Pack struct {
	path      string
	indexPath string
	packFile  *os.File
	packMM    mmap.MMap
	index     *decodedIndex
	level     int
	cache     *cache.Memory
}

// OpenPack memory-maps the .pack file and reads the .index file into
// memory; the index is not mapped. A nil cache disables intermediate
// delta-base materialization caching.
func OpenPack(packPath, indexPath string, baseCache *cache.Memory) (*Pack, error) {
	idxBytes, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, store.IOErrorf("pack.open", err)
	}
	idx, err := decodeIndex(idxBytes)
	if err != nil {
		return nil, store.Corruptf("pack.open", "index %s: %w", indexPath, err)
	}
	f, err := os.Open(packPath)
	if err != nil {
		return nil, store.IOErrorf("pack.open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, store.IOErrorf("pack.open", err)
	}
	p := &Pack{path: packPath, indexPath: indexPath, packFile: f, index: idx, cache: baseCache}
	if info.Size() > 0 {
		mm, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return nil, store.IOErrorf("pack.open", err)
		}
		p.packMM = mm
	}
	p.level = levelFromName(packPath)
	return p, nil
}

// levelFromName extracts <lll> from a "pack-<hex>.<lll>.{pack,index}"
// filename, defaulting to 0 if the name doesn't match the convention.
func levelFromName(path string) int {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base)) // drop .pack/.index
	parts := strings.Split(base, ".")
	if len(parts) < 2 {
		return 0
	}
	level, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0
	}
	return level
}

func (p *Pack) Close() error {
	if p.packMM != nil {
		if err := p.packMM.Unmap(); err != nil {
			p.packFile.Close()
			return err
		}
	}
	return p.packFile.Close()
}

func (p *Pack) GetMeta(id hash.Id) (store.Meta, bool) {
	e, ok := p.index.find(id)
	if !ok {
		return store.Meta{}, false
	}
	return store.Meta{Kind: e.kind, Size: e.finalSize}, true
}

func (p *Pack) Exists(id hash.Id) bool {
	_, ok := p.index.find(id)
	return ok
}

// Ids returns every id stored in this pack, in ascending order.
func (p *Pack) Ids() []hash.Id { return p.index.allIds() }

// Resolver is consulted when a delta base id is not present in this pack
// (the base may live in a different pack or in a finalized memtable).
type Resolver func(id hash.Id) (kind hash.Kind, payload []byte, ok bool, err error)

// Load materializes id's logical payload, following delta chains (within
// this pack, or via resolve for cross-pack bases) up to maxChainDepth.
func (p *Pack) Load(id hash.Id, resolve Resolver) (hash.Kind, []byte, bool, error) {
	return p.materialize(id, 0, resolve)
}

func (p *Pack) materialize(id hash.Id, depth int, resolve Resolver) (hash.Kind, []byte, bool, error) {
	if depth > maxChainDepth {
		return 0, nil, false, store.Corruptf("pack.load", "delta chain exceeds %d for id %s", maxChainDepth, id)
	}
	if p.cache != nil {
		if res, ok, _ := p.cache.Load(context.Background(), id); ok {
			return res.Kind, res.Payload, true, nil
		}
	}
	e, ok := p.index.find(id)
	if !ok {
		if resolve != nil {
			return resolve(id)
		}
		return 0, nil, false, nil
	}
	kind, isDelta, baseID, deltaBytes, plain, _, err := decodeRecordAt(p.packMM, int(e.offset))
	if err != nil {
		return 0, nil, false, store.Corruptf("pack.load", "id %s: %w", id, err)
	}
	if !isDelta {
		return kind, plain, true, nil
	}
	baseKind, baseBytes, found, err := p.materialize(baseID, depth+1, resolve)
	if err != nil {
		return 0, nil, false, err
	}
	if !found {
		return 0, nil, false, store.Corruptf("pack.load", "delta base %s for %s not found", baseID, id)
	}
	_ = baseKind
	full, err := delta.Apply(baseBytes, deltaBytes)
	if err != nil {
		return 0, nil, false, store.Corruptf("pack.load", "applying delta for %s: %w", id, err)
	}
	if p.cache != nil {
		p.cache.Insert(id, kind, full)
	}
	return kind, full, true, nil
}
