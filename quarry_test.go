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

package quarry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarryvcs/quarry"
	"github.com/quarryvcs/quarry/config"
	"github.com/quarryvcs/quarry/hash"
)

func TestOpenPutLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	ds, err := quarry.Open(root, config.Default(), false)
	require.NoError(t, err)
	defer ds.Close()

	ctx := context.Background()
	content := []byte("quarry composition root content")
	id, kind, err := ds.Put(ctx, hash.KindBlob, content)
	require.NoError(t, err)
	require.Equal(t, hash.KindBlob, kind)

	blob, err := ds.LoadBlob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, content, blob.Bytes())
}

func TestOpenForWritesRejectsSecondWriter(t *testing.T) {
	root := t.TempDir()
	first, err := quarry.Open(root, config.Default(), false)
	require.NoError(t, err)
	defer first.Close()

	_, err = quarry.Open(root, config.Default(), false)
	require.Error(t, err)
}

func TestOpenReadOnlyDoesNotBlockOnWriter(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.MemtableCapacityBytes = 32

	writer, err := quarry.Open(root, cfg, false)
	require.NoError(t, err)
	defer writer.Close()

	ctx := context.Background()
	first := []byte("finalized")
	id, _, err := writer.Put(ctx, hash.KindBlob, first)
	require.NoError(t, err)
	// Oversized relative to the tiny memtable capacity: forces the prior
	// record to be rotated out to a finalized, on-disk memtable segment.
	_, _, err = writer.Put(ctx, hash.KindBlob, []byte("a second record well past the tiny capacity"))
	require.NoError(t, err)

	reader, err := quarry.OpenReadOnly(root, cfg)
	require.NoError(t, err)
	defer reader.Close()

	blob, err := reader.LoadBlob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, first, blob.Bytes())
}

func TestOpenForWritesSucceedsAfterPriorCloses(t *testing.T) {
	root := t.TempDir()
	first, err := quarry.Open(root, config.Default(), false)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := quarry.Open(root, config.Default(), false)
	require.NoError(t, err)
	defer second.Close()
}
