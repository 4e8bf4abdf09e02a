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

// Package frame implements the on-disk record framing shared by the loose
// backend and the pack store's memtable: a 16-byte header, a (possibly
// LZ4-compressed) payload, and a trailing checksum. A memtable record is
// this same framing with a 20-byte id appended, so both call sites build on
// the same primitives rather than keeping two copies of the layout in sync.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/lz4"

	"github.com/quarryvcs/quarry/hash"
)

// Codec names how the payload bytes on disk relate to the logical content.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecLZ4
)

// HeaderLen is the fixed byte length of a Header on disk.
const HeaderLen = 16

// ChecksumLen is the trailing payload-checksum length.
const ChecksumLen = 8

// Version is the current on-disk record version.
const Version = 1

var (
	// ErrHeaderCRC is returned when the 4-byte header CRC does not match.
	ErrHeaderCRC = errors.New("frame: header checksum mismatch")
	// ErrPayloadChecksum is returned when the trailing payload checksum
	// does not match.
	ErrPayloadChecksum = errors.New("frame: payload checksum mismatch")
	// ErrTruncated is returned when a buffer is shorter than its header
	// declares.
	ErrTruncated = errors.New("frame: truncated record")
)

// Header is the 16-byte prefix of every loose file and memtable record.
type Header struct {
	Version     uint8
	Kind        hash.Kind
	HasChecksum bool
	Codec       Codec
	Original    uint32
	Stored      uint32
}

func packTag(h Header) uint32 {
	var tag uint32
	tag |= uint32(h.Version) & 0x7
	tag |= (uint32(h.Kind) & 0xf) << 3
	if h.HasChecksum {
		tag |= 1 << 7
	}
	tag |= (uint32(h.Codec) & 0x7) << 8
	return tag
}

func unpackTag(tag uint32) (version uint8, kind hash.Kind, hasChecksum bool, codec Codec) {
	version = uint8(tag & 0x7)
	kind = hash.Kind((tag >> 3) & 0xf)
	hasChecksum = (tag>>7)&1 != 0
	codec = Codec((tag >> 8) & 0x7)
	return
}

// xxh32 is the 32-bit header CRC primitive: the corpus carries no
// 32-bit-specific xxhash implementation, so the 64-bit xxhash.Sum64 is
// reused and truncated (see DESIGN.md).
func xxh32(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}

// Marshal encodes h (with a freshly computed header CRC) to a 16-byte slice.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], packTag(h))
	binary.LittleEndian.PutUint32(buf[4:8], h.Original)
	binary.LittleEndian.PutUint32(buf[8:12], h.Stored)
	crc := xxh32(buf[0:12])
	binary.LittleEndian.PutUint32(buf[12:16], crc)
	return buf
}

// UnmarshalHeader decodes and validates a 16-byte header.
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, ErrTruncated
	}
	tag := binary.LittleEndian.Uint32(buf[0:4])
	original := binary.LittleEndian.Uint32(buf[4:8])
	stored := binary.LittleEndian.Uint32(buf[8:12])
	wantCRC := binary.LittleEndian.Uint32(buf[12:16])
	if gotCRC := xxh32(buf[0:12]); gotCRC != wantCRC {
		return Header{}, fmt.Errorf("%w: want %x got %x", ErrHeaderCRC, wantCRC, gotCRC)
	}
	version, kind, hasChecksum, codec := unpackTag(tag)
	if !kind.Valid() {
		return Header{}, fmt.Errorf("frame: %w", hash.ErrUnknownKind)
	}
	return Header{
		Version:     version,
		Kind:        kind,
		HasChecksum: hasChecksum,
		Codec:       codec,
		Original:    original,
		Stored:      stored,
	}, nil
}

// Encode compresses payload (if codec requests it and doing so shrinks it),
// and returns the full on-disk record: header || stored-payload || checksum.
func Encode(kind hash.Kind, payload []byte, tryLZ4 bool) ([]byte, error) {
	if len(payload) > (1<<32 - 1) {
		return nil, fmt.Errorf("frame: payload of %d bytes exceeds u32 length field", len(payload))
	}
	stored := payload
	codec := CodecNone
	if tryLZ4 && len(payload) > 0 {
		compressed, err := compressLZ4(payload)
		if err == nil && len(compressed) < len(payload) {
			stored = compressed
			codec = CodecLZ4
		}
	}
	h := Header{
		Version:     Version,
		Kind:        kind,
		HasChecksum: true,
		Codec:       codec,
		Original:    uint32(len(payload)),
		Stored:      uint32(len(stored)),
	}
	out := make([]byte, 0, HeaderLen+len(stored)+ChecksumLen)
	out = append(out, h.Marshal()...)
	out = append(out, stored...)
	var sum [ChecksumLen]byte
	binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(stored))
	out = append(out, sum[:]...)
	return out, nil
}

// Decode parses a full on-disk record (as produced by Encode) and returns
// the header and the decompressed original payload.
func Decode(buf []byte) (Header, []byte, error) {
	h, err := UnmarshalHeader(buf)
	if err != nil {
		return Header{}, nil, err
	}
	rest := buf[HeaderLen:]
	if len(rest) < int(h.Stored)+ChecksumLen {
		return Header{}, nil, ErrTruncated
	}
	stored := rest[:h.Stored]
	sum := rest[h.Stored : h.Stored+ChecksumLen]
	if h.HasChecksum {
		want := binary.LittleEndian.Uint64(sum)
		if got := xxhash.Sum64(stored); got != want {
			return Header{}, nil, fmt.Errorf("%w: want %x got %x", ErrPayloadChecksum, want, got)
		}
	}
	payload := stored
	if h.Codec == CodecLZ4 {
		decompressed, err := decompressLZ4(stored, int(h.Original))
		if err != nil {
			return Header{}, nil, fmt.Errorf("frame: lz4 decode: %w", err)
		}
		payload = decompressed
	}
	if uint32(len(payload)) != h.Original {
		return Header{}, nil, fmt.Errorf("frame: decoded length %d != declared %d", len(payload), h.Original)
	}
	return h, payload, nil
}

// RecordLen reports the total on-disk length of a record whose header
// declares the given stored size, useful for scanning without decoding.
func RecordLen(h Header) int {
	return HeaderLen + int(h.Stored) + ChecksumLen
}

func compressLZ4(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressLZ4(src []byte, originalLen int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	out := make([]byte, originalLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
