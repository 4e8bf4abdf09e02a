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

// Package wire holds the low-level varint/length-prefixed primitives shared
// by the serializer (encode) and the object views (decode), so the two sides
// of the canonical format can never drift from one another.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/quarryvcs/quarry/hash"
)

// ErrTruncated is returned when a Reader runs out of bytes mid-field.
var ErrTruncated = errors.New("wire: truncated record")

// Writer appends canonical-format fields to an in-memory buffer.
type Writer struct {
	buf []byte
}

func NewWriter(capHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capHint)}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Uvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *Writer) Varint(v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) String(s string) {
	w.Uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) Id(id hash.Id) {
	w.buf = append(w.buf, id[:]...)
}

// Reader consumes canonical-format fields from a buffer, tracking position.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, ErrTruncated
	}
	r.pos += n
	return v, nil
}

func (r *Reader) Varint() (int64, error) {
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		return 0, ErrTruncated
	}
	r.pos += n
	return v, nil
}

func (r *Reader) Byte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, ErrTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) Raw(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) String() (string, error) {
	n, err := r.Uvarint()
	if err != nil {
		return "", err
	}
	b, err := r.Raw(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) Id() (hash.Id, error) {
	b, err := r.Raw(hash.Size)
	if err != nil {
		return hash.Id{}, err
	}
	id, err := hash.FromBytes(b)
	if err != nil {
		return hash.Id{}, fmt.Errorf("wire: %w", err)
	}
	return id, nil
}

// Done reports whether the entire buffer has been consumed.
func (r *Reader) Done() bool {
	return r.pos == len(r.buf)
}
