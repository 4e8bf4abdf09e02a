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
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/internal/frame"
	"github.com/quarryvcs/quarry/store"
)

// ErrTableFull signals that the next record would exceed the active
// memtable's capacity; the caller (Leveled) must finalize it and open a
// fresh one before retrying the write.
var ErrTableFull = errors.New("pack: memtable is full")

// memtableEntry is what the active (in-memory, not yet mmap'd) memtable
// keeps per id so reads never have to re-parse the append-only file.
type memtableEntry struct {
	kind    hash.Kind
	payload []byte
}

// activeMemtable is the single append-only, currently-writable Level 0
// table. It mirrors every record into an in-memory map so reads are O(1)
// without re-scanning the file.
type activeMemtable struct {
	path     string
	capacity uint64
	tryLZ4   bool
	f        *os.File
	size     uint64
	entries  map[hash.Id]memtableEntry
	order    []hash.Id
}

// openActiveMemtable opens (creating if absent) the append-only file at
// path and restores its in-memory index, tolerating truncation of a
// trailing partial record (the only record class allowed to be torn, since
// this file is still being actively appended to).
func openActiveMemtable(path string, capacity uint64, tryLZ4 bool) (*activeMemtable, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, store.IOErrorf("pack.memtable.open", err)
	}
	m := &activeMemtable{
		path:     path,
		capacity: capacity,
		tryLZ4:   tryLZ4,
		f:        f,
		entries:  make(map[hash.Id]memtableEntry),
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		f.Close()
		return nil, store.IOErrorf("pack.memtable.restore", err)
	}
	if err := m.restore(buf); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		f.Close()
		return nil, store.IOErrorf("pack.memtable.seek", err)
	}
	return m, nil
}

func (m *activeMemtable) restore(buf []byte) error {
	offset := 0
	for offset < len(buf) {
		id, _, payload, total, err := decodeMemtableRecord(buf[offset:])
		if err != nil {
			// A torn trailing record on the active table is tolerated: the
			// process likely crashed mid-append. Truncate our view to the
			// last complete record and stop scanning.
			trunc, terr := os.OpenFile(m.path, os.O_WRONLY, 0o644)
			if terr == nil {
				_ = trunc.Truncate(int64(offset))
				trunc.Close()
			}
			break
		}
		h, _, decErr := frame.Decode(buf[offset : offset+total-hash.Size])
		if decErr != nil {
			break
		}
		id2 := id
		m.entries[id2] = memtableEntry{kind: h.Kind, payload: payload}
		m.order = append(m.order, id2)
		offset += total
		m.size = uint64(offset)
	}
	return nil
}

// decodeMemtableRecord parses one frame-encoded record followed by its
// 20-byte id at the start of buf, returning the id, header, payload, and
// the total on-disk length consumed.
func decodeMemtableRecord(buf []byte) (hash.Id, frame.Header, []byte, int, error) {
	h, err := frame.UnmarshalHeader(buf)
	if err != nil {
		return hash.Id{}, frame.Header{}, nil, 0, err
	}
	recLen := frame.RecordLen(h)
	if len(buf) < recLen+hash.Size {
		return hash.Id{}, frame.Header{}, nil, 0, fmt.Errorf("pack: truncated memtable record")
	}
	_, payload, err := frame.Decode(buf[:recLen])
	if err != nil {
		return hash.Id{}, frame.Header{}, nil, 0, err
	}
	id, err := hash.FromBytes(buf[recLen : recLen+hash.Size])
	if err != nil {
		return hash.Id{}, frame.Header{}, nil, 0, err
	}
	return id, h, payload, recLen + hash.Size, nil
}

// put appends content's record and returns its id. If already present, it
// is a no-op (idempotent put). Returns ErrTableFull without writing
// anything when the record would overflow capacity and the table is
// already non-empty.
func (m *activeMemtable) put(kind hash.Kind, content []byte) (hash.Id, error) {
	id, err := hash.Sum(kind, content)
	if err != nil {
		return hash.Id{}, store.InvalidArgumentf("pack.memtable.put", "%v", err)
	}
	if _, ok := m.entries[id]; ok {
		return id, nil
	}
	record, err := frame.Encode(kind, content, m.tryLZ4)
	if err != nil {
		return hash.Id{}, store.Corruptf("pack.memtable.put", "encode: %w", err)
	}
	total := uint64(len(record) + hash.Size)
	if m.size > 0 && m.size+total > m.capacity {
		return hash.Id{}, ErrTableFull
	}
	if _, err := m.f.Write(record); err != nil {
		return hash.Id{}, store.IOErrorf("pack.memtable.put", err)
	}
	if _, err := m.f.Write(id[:]); err != nil {
		return hash.Id{}, store.IOErrorf("pack.memtable.put", err)
	}
	m.entries[id] = memtableEntry{kind: kind, payload: content}
	m.order = append(m.order, id)
	m.size += total
	return id, nil
}

func (m *activeMemtable) get(id hash.Id) (memtableEntry, bool) {
	e, ok := m.entries[id]
	return e, ok
}

// commit flushes the active file's data to stable storage.
func (m *activeMemtable) commit() error {
	if err := m.f.Sync(); err != nil {
		return store.IOErrorf("pack.memtable.commit", err)
	}
	return nil
}

func (m *activeMemtable) close() error {
	return m.f.Close()
}

// finalizedMemtable is a sealed, memory-mapped, read-only memtable file.
type finalizedMemtable struct {
	path string
	f    *os.File
	mm   mmap.MMap
	ids  map[hash.Id]int // id -> byte offset of its record within mm
}

// finalize seals active by syncing, closing, and renaming it to a
// sequence-numbered finalized name, then reopens it memory-mapped.
func finalize(active *activeMemtable, finalizedPath string) (*finalizedMemtable, error) {
	if err := active.commit(); err != nil {
		return nil, err
	}
	if err := active.close(); err != nil {
		return nil, store.IOErrorf("pack.memtable.finalize", err)
	}
	if err := os.Rename(active.path, finalizedPath); err != nil {
		return nil, store.IOErrorf("pack.memtable.finalize", err)
	}
	return openFinalizedMemtable(finalizedPath)
}

func openFinalizedMemtable(path string) (*finalizedMemtable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, store.IOErrorf("pack.memtable.open_finalized", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, store.IOErrorf("pack.memtable.open_finalized", err)
	}
	fm := &finalizedMemtable{path: path, f: f, ids: make(map[hash.Id]int)}
	if info.Size() == 0 {
		return fm, nil
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, store.IOErrorf("pack.memtable.mmap", err)
	}
	fm.mm = mm
	offset := 0
	for offset < len(mm) {
		id, _, _, total, err := decodeMemtableRecord(mm[offset:])
		if err != nil {
			return nil, store.Corruptf("pack.memtable.open_finalized", "record at %d: %w", offset, err)
		}
		fm.ids[id] = offset
		offset += total
	}
	return fm, nil
}

func (fm *finalizedMemtable) get(id hash.Id) (frame.Header, []byte, bool, error) {
	offset, ok := fm.ids[id]
	if !ok {
		return frame.Header{}, nil, false, nil
	}
	_, h, payload, _, err := decodeMemtableRecord(fm.mm[offset:])
	if err != nil {
		return frame.Header{}, nil, false, store.Corruptf("pack.memtable.get", "id %s: %w", id, err)
	}
	return h, payload, true, nil
}

func (fm *finalizedMemtable) close() error {
	if fm.mm != nil {
		if err := fm.mm.Unmap(); err != nil {
			fm.f.Close()
			return err
		}
	}
	return fm.f.Close()
}
