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

// Package loose implements the one-file-per-object backend: every id is
// stored at <root>/<first two hex chars>/<full 40-char hex>, framed with
// internal/frame exactly as a memtable record is, minus the trailing id
// (the filename already carries it). Objects stored here stay here: the
// pack store neither reads this tier nor moves its objects into packs.
package loose

import (
	"context"
	"os"
	"path/filepath"

	"github.com/quarryvcs/quarry/hash"
	"github.com/quarryvcs/quarry/internal/frame"
	"github.com/quarryvcs/quarry/metrics"
	"github.com/quarryvcs/quarry/store"
)

const backendName = "loose"

// Disk is the loose-file backend rooted at a directory.
type Disk struct {
	root           string
	maxObjectBytes uint64
	syncOnClose    bool
	tryLZ4         bool
	metrics        *metrics.Store
}

// Option configures a Disk backend.
type Option func(*Disk)

// WithSyncOnClose enables fdatasync-equivalent durability: every written
// file is Sync()'d before its directory entry is published via rename.
// The Go runtime exposes File.Sync, which issues fsync rather than the
// data-only fdatasync the spec names; no fdatasync syscall wrapper exists
// in the corpus, so fsync is used in its place.
func WithSyncOnClose(enabled bool) Option {
	return func(d *Disk) { d.syncOnClose = enabled }
}

// WithLZ4 enables best-effort LZ4 compression of stored payloads.
func WithLZ4(enabled bool) Option {
	return func(d *Disk) { d.tryLZ4 = enabled }
}

// WithMetrics wires Prometheus observability into the backend.
func WithMetrics(m *metrics.Store) Option {
	return func(d *Disk) { d.metrics = m }
}

// New opens (creating if necessary) a loose backend rooted at root.
// maxObjectBytes bounds any single stored object; Put rejects larger
// content with store.ErrCapacityExceeded.
func New(root string, maxObjectBytes uint64, opts ...Option) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, store.IOErrorf("loose.New", err)
	}
	d := &Disk{root: root, maxObjectBytes: maxObjectBytes}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Disk) pathFor(id hash.Id) string {
	hexID := id.String()
	return filepath.Join(d.root, hexID[:2], hexID)
}

func (d *Disk) observe(op, outcome string) {
	if d.metrics != nil {
		d.metrics.Op(backendName, op, outcome)
	}
}

func (d *Disk) readRecord(id hash.Id) (frame.Header, []byte, bool, error) {
	buf, err := os.ReadFile(d.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return frame.Header{}, nil, false, nil
		}
		return frame.Header{}, nil, false, store.IOErrorf("loose.read", err)
	}
	h, payload, err := frame.Decode(buf)
	if err != nil {
		return frame.Header{}, nil, false, store.Corruptf("loose.read", "id %s: %w", id, err)
	}
	return h, payload, true, nil
}

func (d *Disk) GetMeta(_ context.Context, id hash.Id) (store.Meta, bool, error) {
	h, _, ok, err := d.readRecord(id)
	if err != nil || !ok {
		d.observe("get_meta", outcomeFor(ok, err))
		return store.Meta{}, ok, err
	}
	d.observe("get_meta", "hit")
	return store.Meta{Kind: h.Kind, Size: uint64(h.Original)}, true, nil
}

func (d *Disk) Exists(_ context.Context, id hash.Id) (bool, error) {
	if _, err := os.Stat(d.pathFor(id)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, store.IOErrorf("loose.exists", err)
	}
	return true, nil
}

func (d *Disk) Load(_ context.Context, id hash.Id) (store.LoadResult, bool, error) {
	h, payload, ok, err := d.readRecord(id)
	if err != nil || !ok {
		d.observe("load", outcomeFor(ok, err))
		return store.LoadResult{}, ok, err
	}
	d.observe("load", "hit")
	return store.LoadResult{Kind: h.Kind, Payload: payload}, true, nil
}

func (d *Disk) Put(_ context.Context, kind hash.Kind, content []byte) (hash.Id, error) {
	if uint64(len(content)) > d.maxObjectBytes {
		d.observe("put", "error")
		return hash.Id{}, store.CapacityExceededf("loose.put", "object of %d bytes exceeds loose max %d", len(content), d.maxObjectBytes)
	}
	id, err := hash.Sum(kind, content)
	if err != nil {
		d.observe("put", "error")
		return hash.Id{}, store.InvalidArgumentf("loose.put", "%v", err)
	}
	dest := d.pathFor(id)
	if _, err := os.Stat(dest); err == nil {
		d.observe("put", "exists")
		return id, nil
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.observe("put", "error")
		return hash.Id{}, store.IOErrorf("loose.put", err)
	}
	record, err := frame.Encode(kind, content, d.tryLZ4)
	if err != nil {
		d.observe("put", "error")
		return hash.Id{}, store.Corruptf("loose.put", "encode: %w", err)
	}
	if err := d.writeAtomic(dir, dest, record); err != nil {
		d.observe("put", "error")
		return hash.Id{}, err
	}
	d.observe("put", "written")
	return id, nil
}

func (d *Disk) writeAtomic(dir, dest string, record []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return store.IOErrorf("loose.put", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(record); err != nil {
		cleanup()
		return store.IOErrorf("loose.put", err)
	}
	if d.syncOnClose {
		if err := tmp.Sync(); err != nil {
			cleanup()
			return store.IOErrorf("loose.put", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return store.IOErrorf("loose.put", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return store.IOErrorf("loose.put", err)
	}
	return nil
}

// Walk calls fn for every id currently stored loose, in unspecified order.
// The pack store does not call it.
func (d *Disk) Walk(fn func(hash.Id) error) error {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return store.IOErrorf("loose.walk", err)
	}
	for _, fanout := range entries {
		if !fanout.IsDir() {
			continue
		}
		sub := filepath.Join(d.root, fanout.Name())
		files, err := os.ReadDir(sub)
		if err != nil {
			return store.IOErrorf("loose.walk", err)
		}
		for _, f := range files {
			if f.IsDir() || len(f.Name()) != hash.Size*2 {
				continue
			}
			id, err := hash.FromHex(f.Name())
			if err != nil {
				continue
			}
			if err := fn(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Remove deletes id's loose file, if present. The pack store does not call
// it, so packing never removes loose files.
func (d *Disk) Remove(id hash.Id) error {
	if err := os.Remove(d.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return store.IOErrorf("loose.remove", err)
	}
	return nil
}

func outcomeFor(found bool, err error) string {
	if err != nil {
		return "error"
	}
	if found {
		return "hit"
	}
	return "miss"
}
