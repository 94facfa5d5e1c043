package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkandula/blobsync/sync"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocalSource_listsFilesWithSlashKeys(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	writeFile(t, root, "sub/dir/b.txt", "world")

	src, err := NewLocalSource(root)
	require.NoError(t, err)

	objects, err := src.List(context.Background(), "")
	require.NoError(t, err)

	byPath := map[string]sync.Object{}
	for _, o := range objects {
		byPath[o.Path] = o
		assert.NotContainsf(t, o.Path, "\\", "keys must use forward slashes: %q", o.Path)
	}
	require.Contains(t, byPath, "a.txt")
	require.Contains(t, byPath, "sub/dir/b.txt")
	assert.Equal(t, int64(5), byPath["a.txt"].Size)
	assert.False(t, byPath["a.txt"].Placeholder)
}

func TestLocalSource_emptyDirBecomesPlaceholder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep/file.txt", "x")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty", "nested"), 0o755))

	src, err := NewLocalSource(root)
	require.NoError(t, err)

	objects, err := src.List(context.Background(), "")
	require.NoError(t, err)

	var markers []string
	for _, o := range objects {
		if o.Placeholder {
			markers = append(markers, o.Path)
			assert.Zero(t, o.Size)
		}
	}
	// Only the leaf is empty; "keep" has a file and "empty" has a subdir.
	assert.Equal(t, []string{"empty/nested/.placeholder"}, markers)
}

func TestLocalSource_prefixFilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs/a.txt", "a")
	writeFile(t, root, "other/b.txt", "b")

	src, err := NewLocalSource(root)
	require.NoError(t, err)

	objects, err := src.List(context.Background(), "docs/")
	require.NoError(t, err)

	require.Len(t, objects, 1)
	assert.True(t, strings.HasPrefix(objects[0].Path, "docs/"))
}

func TestLocalSource_open(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub/c.txt", "content")

	src, err := NewLocalSource(root)
	require.NoError(t, err)

	r, size, err := src.Open(context.Background(), "sub/c.txt")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.Equal(t, int64(7), size)
}

func TestNewLocalSource_rejectsMissingRoot(t *testing.T) {
	_, err := NewLocalSource(filepath.Join(t.TempDir(), "nonexistent"))
	assert.Error(t, err)
}

func TestNewLocalSource_rejectsFileRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "plain.txt", "x")

	_, err := NewLocalSource(filepath.Join(root, "plain.txt"))
	assert.Error(t, err)
}
