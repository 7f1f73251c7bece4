package memfs_test

import (
	"context"
	"testing"

	"github.com/moleculax/tileengine/vfs/memfs"
	"github.com/stretchr/testify/require"
)

func TestAppendReadFileSize(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()

	require.NoError(t, fs.Append(ctx, "/arr/frag/a.tdb", []byte("hello ")))
	require.NoError(t, fs.Append(ctx, "/arr/frag/a.tdb", []byte("world")))
	require.NoError(t, fs.Commit(ctx, "/arr/frag/a.tdb"))

	size, err := fs.FileSize(ctx, "/arr/frag/a.tdb")
	require.NoError(t, err)
	require.EqualValues(t, 11, size)

	buf := make([]byte, 5)
	require.NoError(t, fs.Read(ctx, "/arr/frag/a.tdb", 6, buf))
	require.Equal(t, "world", string(buf))

	isFile, err := fs.IsFile(ctx, "/arr/frag/a.tdb")
	require.NoError(t, err)
	require.True(t, isFile)
}

func TestReadOutOfRange(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, fs.Append(ctx, "/a", []byte("abc")))

	buf := make([]byte, 10)
	require.Error(t, fs.Read(ctx, "/a", 0, buf))
}

func TestCreateDirAndList(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, fs.CreateDir(ctx, "/arr"))
	require.NoError(t, fs.Append(ctx, "/arr/frag1/__tiledb_fragment.ok", nil))
	require.NoError(t, fs.Append(ctx, "/arr/frag2/__tiledb_fragment.ok", nil))

	isDir, err := fs.IsDir(ctx, "/arr")
	require.NoError(t, err)
	require.True(t, isDir)

	children, err := fs.List(ctx, "/arr")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"frag1", "frag2"}, children)
}

func TestDeleteFileAndDir(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, fs.Append(ctx, "/arr/x.tdb", []byte("x")))
	require.NoError(t, fs.DeleteFile(ctx, "/arr/x.tdb"))
	isFile, err := fs.IsFile(ctx, "/arr/x.tdb")
	require.NoError(t, err)
	require.False(t, isFile)

	require.NoError(t, fs.Append(ctx, "/arr/y/z.tdb", []byte("z")))
	require.NoError(t, fs.DeleteDir(ctx, "/arr/y"))
	isFile, err = fs.IsFile(ctx, "/arr/y/z.tdb")
	require.NoError(t, err)
	require.False(t, isFile)
}

func TestSupportsLocking(t *testing.T) {
	require.False(t, memfs.New().SupportsLocking())
}
