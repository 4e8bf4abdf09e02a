package pack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarryvcs/quarry/hash"
)

func TestActiveMemtablePutGetRoundTrip(t *testing.T) {
	m, err := openActiveMemtable(filepath.Join(t.TempDir(), "memtable.part"), 1<<20, true)
	require.NoError(t, err)
	defer m.close()

	content := []byte("the quick brown fox jumps over the lazy dog")
	id, err := m.put(hash.KindBlob, content)
	require.NoError(t, err)

	e, ok := m.get(id)
	require.True(t, ok)
	require.Equal(t, hash.KindBlob, e.kind)
	require.Equal(t, content, e.payload)
}

func TestActiveMemtablePutIsIdempotent(t *testing.T) {
	m, err := openActiveMemtable(filepath.Join(t.TempDir(), "memtable.part"), 1<<20, false)
	require.NoError(t, err)
	defer m.close()

	content := []byte("idempotent")
	id1, err := m.put(hash.KindBlob, content)
	require.NoError(t, err)
	id2, err := m.put(hash.KindBlob, content)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestActiveMemtableSignalsTableFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memtable.part")
	m, err := openActiveMemtable(path, 32, false)
	require.NoError(t, err)
	defer m.close()

	_, err = m.put(hash.KindBlob, []byte("small"))
	require.NoError(t, err)

	_, err = m.put(hash.KindBlob, []byte("this record is far too large for the tiny capacity"))
	require.ErrorIs(t, err, ErrTableFull)
}

func TestActiveMemtableRestoresFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memtable.part")
	m, err := openActiveMemtable(path, 1<<20, true)
	require.NoError(t, err)

	id1, err := m.put(hash.KindBlob, []byte("first"))
	require.NoError(t, err)
	id2, err := m.put(hash.KindTree, []byte("second-content"))
	require.NoError(t, err)
	require.NoError(t, m.commit())
	require.NoError(t, m.close())

	reopened, err := openActiveMemtable(path, 1<<20, true)
	require.NoError(t, err)
	defer reopened.close()

	e1, ok := reopened.get(id1)
	require.True(t, ok)
	require.Equal(t, []byte("first"), e1.payload)

	e2, ok := reopened.get(id2)
	require.True(t, ok)
	require.Equal(t, hash.KindTree, e2.kind)
	require.Equal(t, []byte("second-content"), e2.payload)
}

func TestActiveMemtableTruncatesTornTrailingRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memtable.part")
	m, err := openActiveMemtable(path, 1<<20, false)
	require.NoError(t, err)

	_, err = m.put(hash.KindBlob, []byte("complete record"))
	require.NoError(t, err)
	require.NoError(t, m.commit())
	completeSize := m.size
	require.NoError(t, m.close())

	// Simulate a crash mid-append: extend the file with a partial record.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := openActiveMemtable(path, 1<<20, false)
	require.NoError(t, err)
	defer reopened.close()
	require.Equal(t, completeSize, reopened.size)
}

func TestFinalizeSealsAndReopensReadOnly(t *testing.T) {
	dir := t.TempDir()
	active, err := openActiveMemtable(filepath.Join(dir, "memtable.part"), 1<<20, true)
	require.NoError(t, err)

	id, err := active.put(hash.KindBlob, []byte("sealed content"))
	require.NoError(t, err)

	fm, err := finalize(active, filepath.Join(dir, "memtable.00000"))
	require.NoError(t, err)
	defer fm.close()

	h, payload, ok, err := fm.get(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash.KindBlob, h.Kind)
	require.Equal(t, []byte("sealed content"), payload)

	_, _, ok, err = fm.get(hash.Id{0xFF})
	require.NoError(t, err)
	require.False(t, ok)
}
