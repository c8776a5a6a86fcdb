package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveStreamOpenDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	n, err := store.SaveStream("tmp/doc.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	require.EqualValues(t, 8, n)

	f, err := store.Open("tmp/doc.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, store.Delete("tmp/doc.pdf"))
	require.NoError(t, store.Delete("tmp/doc.pdf"))
	_, err = os.Stat(filepath.Join(dir, "tmp", "doc.pdf"))
	require.True(t, os.IsNotExist(err))
}

func TestLocalStorageKeepsNamesInsideBaseDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("../../escape.pdf", []byte("x"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "escape.pdf"))
	require.NoError(t, err)
}

func TestLocalStorageUniqueName(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "content_42.pdf", store.UniqueName("content_42.pdf"))
	_, err = store.Save("content_42.pdf", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "content_42 (1).pdf", store.UniqueName("content_42.pdf"))
}
