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

// Package pack implements the leveled, immutable pack store: memtables
// (Level 0, append-only) compact into sorted .pack/.index file pairs, which
// in turn compact into higher levels. Records may be stored as a delta
// against a similar, already-emitted object of the same kind.
//
// The .index layout chosen here varies from a fixed 12-byte-per-id record:
// each id's metadata (kind, logical size, pack offset) is itself a small
// record of one kind byte and two uvarints, addressed through a parallel
// fixed-width offset table. This keeps the metadata self-describing in the
// same style as hash.Header, at the cost of a second indirection on
// lookup — documented as a deliberate deviation in DESIGN.md.
package pack

import (
	"fmt"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/internal/frame"
	"github.com/quarryvcs/quarry/internal/wire"
)

// fanoutSize is the number of first-byte buckets in a pack index.
const fanoutSize = 256

// maxChainDepth bounds delta chain resolution on read, matching the
// generous read-side tolerance the write side's shorter cap leaves room
// for (§4.6.3: write caps at 64, reads tolerate up to 128).
const maxChainDepth = 128

// recordKind is the one-byte prefix distinguishing a plain frame record
// from a delta record inside a .pack file.
type recordKind byte

const (
	recordPlain recordKind = 0
	recordDelta recordKind = 1
)

// indexEntry is one id's resolved metadata: enough to seek directly to its
// record in the .pack file and to answer GetMeta without reading it.
type indexEntry struct {
	id        hash.Id
	kind      hash.Kind
	finalSize uint64
	offset    uint64
}

// encodeIndex writes the fan-out table, the sorted id array, the parallel
// metadata-offset array, and the metadata blob.
func encodeIndex(entries []indexEntry) []byte {
	w := wire.NewWriter(fanoutSize*4 + len(entries)*(hash.Size+4+8))

	fanout := make([]uint32, fanoutSize)
	var running uint32
	bucket := 0
	for _, e := range entries {
		for bucket < int(e.id[0]) {
			fanout[bucket] = running
			bucket++
		}
		running++
	}
	for bucket < fanoutSize {
		fanout[bucket] = running
		bucket++
	}
	for _, count := range fanout {
		var b [4]byte
		b[0] = byte(count)
		b[1] = byte(count >> 8)
		b[2] = byte(count >> 16)
		b[3] = byte(count >> 24)
		w.Raw(b[:])
	}

	for _, e := range entries {
		w.Id(e.id)
	}

	meta := wire.NewWriter(len(entries) * 12)
	metaOffsets := make([]uint32, len(entries))
	for i, e := range entries {
		metaOffsets[i] = uint32(len(meta.Bytes()))
		meta.Byte(byte(e.kind))
		meta.Uvarint(e.finalSize)
		meta.Uvarint(e.offset)
	}
	for _, off := range metaOffsets {
		var b [4]byte
		b[0] = byte(off)
		b[1] = byte(off >> 8)
		b[2] = byte(off >> 16)
		b[3] = byte(off >> 24)
		w.Raw(b[:])
	}
	w.Raw(meta.Bytes())
	return w.Bytes()
}

// decodedIndex is the parsed view of a .index file, backed by the bytes
// OpenPack read from it.
type decodedIndex struct {
	buf         []byte
	fanout      [fanoutSize]uint32
	ids         []byte // N*hash.Size, ascending
	metaOffsets []byte // N*4
	meta        []byte
	count       int
}

func decodeIndex(buf []byte) (*decodedIndex, error) {
	if len(buf) < fanoutSize*4 {
		return nil, fmt.Errorf("pack: index truncated before fanout table")
	}
	di := &decodedIndex{buf: buf}
	for i := 0; i < fanoutSize; i++ {
		b := buf[i*4 : i*4+4]
		di.fanout[i] = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	}
	n := int(di.fanout[fanoutSize-1])
	di.count = n
	idsStart := fanoutSize * 4
	idsEnd := idsStart + n*hash.Size
	if len(buf) < idsEnd {
		return nil, fmt.Errorf("pack: index truncated in id array")
	}
	di.ids = buf[idsStart:idsEnd]
	offsetsEnd := idsEnd + n*4
	if len(buf) < offsetsEnd {
		return nil, fmt.Errorf("pack: index truncated in offset array")
	}
	di.metaOffsets = buf[idsEnd:offsetsEnd]
	di.meta = buf[offsetsEnd:]
	return di, nil
}

// find performs fan-out + binary search for id, returning its indexEntry.
func (di *decodedIndex) find(id hash.Id) (indexEntry, bool) {
	lo, hi := uint32(0), di.fanout[0]
	if id[0] > 0 {
		lo, hi = di.fanout[id[0]-1], di.fanout[id[0]]
	}
	for lo < hi {
		mid := (lo + hi) / 2
		cand := di.idAt(int(mid))
		switch {
		case cand == id:
			return di.entryAt(int(mid)), true
		case cand.Less(id):
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return indexEntry{}, false
}

func (di *decodedIndex) idAt(i int) hash.Id {
	var id hash.Id
	copy(id[:], di.ids[i*hash.Size:(i+1)*hash.Size])
	return id
}

func (di *decodedIndex) entryAt(i int) indexEntry {
	off := di.metaOffsets[i*4 : i*4+4]
	metaOff := uint32(off[0]) | uint32(off[1])<<8 | uint32(off[2])<<16 | uint32(off[3])<<24
	r := wire.NewReader(di.meta[metaOff:])
	kindByte, _ := r.Byte()
	finalSize, _ := r.Uvarint()
	offset, _ := r.Uvarint()
	return indexEntry{id: di.idAt(i), kind: hash.Kind(kindByte), finalSize: finalSize, offset: offset}
}

// allIds returns every id in ascending order, for compaction and validation.
func (di *decodedIndex) allIds() []hash.Id {
	out := make([]hash.Id, di.count)
	for i := range out {
		out[i] = di.idAt(i)
	}
	return out
}

// encodePlainRecord lays out a non-delta .pack record: a one-byte kind
// prefix followed by a standard frame record.
func encodePlainRecord(kind hash.Kind, payload []byte, tryLZ4 bool) ([]byte, error) {
	frameRec, err := frame.Encode(kind, payload, tryLZ4)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(frameRec))
	out = append(out, byte(recordPlain))
	out = append(out, frameRec...)
	return out, nil
}

// encodeDeltaRecord lays out a delta .pack record: prefix, then a frame
// record whose logical payload is base_id || uvarint(original_length) ||
// delta_bytes.
func encodeDeltaRecord(kind hash.Kind, baseID hash.Id, originalLength uint64, deltaBytes []byte, tryLZ4 bool) ([]byte, error) {
	w := wire.NewWriter(hash.Size + 10 + len(deltaBytes))
	w.Id(baseID)
	w.Uvarint(originalLength)
	w.Raw(deltaBytes)
	frameRec, err := frame.Encode(kind, w.Bytes(), tryLZ4)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(frameRec))
	out = append(out, byte(recordDelta))
	out = append(out, frameRec...)
	return out, nil
}

// decodeRecordAt parses the record starting at offset in buf, returning
// whether it is a delta and its (decompressed) logical payload: the raw
// content for a plain record, or base_id||delta_bytes fields for a delta.
func decodeRecordAt(buf []byte, offset int) (kind hash.Kind, isDelta bool, baseID hash.Id, deltaBytes []byte, plainPayload []byte, recordLen int, err error) {
	if offset >= len(buf) {
		return 0, false, hash.Id{}, nil, nil, 0, fmt.Errorf("pack: record offset %d out of range", offset)
	}
	rk := recordKind(buf[offset])
	rest := buf[offset+1:]
	h, err := frame.UnmarshalHeader(rest)
	if err != nil {
		return 0, false, hash.Id{}, nil, nil, 0, err
	}
	frameLen := frame.RecordLen(h)
	if len(rest) < frameLen {
		return 0, false, hash.Id{}, nil, nil, 0, fmt.Errorf("pack: truncated record at offset %d", offset)
	}
	_, payload, err := frame.Decode(rest[:frameLen])
	if err != nil {
		return 0, false, hash.Id{}, nil, nil, 0, err
	}
	total := 1 + frameLen
	if rk == recordPlain {
		return h.Kind, false, hash.Id{}, nil, payload, total, nil
	}
	r := wire.NewReader(payload)
	base, err := r.Id()
	if err != nil {
		return 0, false, hash.Id{}, nil, nil, 0, err
	}
	if _, err := r.Uvarint(); err != nil { // original_length, unused on read
		return 0, false, hash.Id{}, nil, nil, 0, err
	}
	db, err := r.Raw(r.Remaining())
	if err != nil {
		return 0, false, hash.Id{}, nil, nil, 0, err
	}
	return h.Kind, true, base, db, nil, total, nil
}
