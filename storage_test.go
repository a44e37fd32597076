package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageSaveOriginal(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	name, err := storage.SaveOriginal("recibos octubre.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(name, "_recibos octubre.pdf"))
	data, err := os.ReadFile(storage.OriginalPath(name))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)
}

func TestStorageSaveOriginalNamesNeverCollide(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	first, err := storage.SaveOriginal("recibos.pdf", bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	second, err := storage.SaveOriginal("recibos.pdf", bytes.NewReader([]byte("b")))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestStorageSaveResultAndImage(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	resultName, err := storage.SaveResult("recibos_separados_job1.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.FileExists(t, storage.ResultPath(resultName))

	imageName, err := storage.SaveImage("job1", "recibo_1.png", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "job1_recibo_1.png", imageName)
	assert.FileExists(t, storage.ImagePath(imageName))
}

func TestCleanupStaleRemovesOldMediaOnly(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	oldOriginal, err := storage.SaveOriginal("old.pdf", bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	freshOriginal, err := storage.SaveOriginal("fresh.pdf", bytes.NewReader([]byte("b")))
	require.NoError(t, err)
	oldImage, err := storage.SaveImage("job1", "recibo_1.png", []byte("c"))
	require.NoError(t, err)
	result, err := storage.SaveResult("recibos_separados_job1.pdf", []byte("d"))
	require.NoError(t, err)

	past := time.Now().Add(-31 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(storage.OriginalPath(oldOriginal), past, past))
	require.NoError(t, os.Chtimes(storage.ImagePath(oldImage), past, past))
	require.NoError(t, os.Chtimes(storage.ResultPath(result), past, past))

	removed := storage.CleanupStale()

	assert.Equal(t, 2, removed)
	assert.NoFileExists(t, storage.OriginalPath(oldOriginal))
	assert.NoFileExists(t, storage.ImagePath(oldImage))
	assert.FileExists(t, storage.OriginalPath(freshOriginal))
	// Result PDFs are never part of the cleanup.
	assert.FileExists(t, storage.ResultPath(result))
}

func TestNewStorageCreatesMediaTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "media")

	_, err := NewStorage(root)
	require.NoError(t, err)

	for _, sub := range []string{"originals", "results", "images"} {
		assert.DirExists(t, filepath.Join(root, sub))
	}
}
