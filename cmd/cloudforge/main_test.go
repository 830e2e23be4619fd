package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silversoul-07/cloudforge/blobstore"
	"github.com/Silversoul-07/cloudforge/imaging"
	"github.com/Silversoul-07/cloudforge/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cloudforge dev\n", out)
}

func TestSearch_RequiresQuery(t *testing.T) {
	_, err := execute(t, "search", "--model", "clip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--text or --image")
}

func TestIngest_RequiresArgs(t *testing.T) {
	_, err := execute(t, "ingest")
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	mem, err := openStore(ctx, config.StorageConfig{Backend: config.StorageMemory})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.MemoryStore{}, mem)

	dir := filepath.Join(t.TempDir(), "media")
	local, err := openStore(ctx, config.StorageConfig{
		Backend:   config.StorageLocal,
		LocalDir:  dir,
		PublicURL: "http://cdn.local",
	})
	require.NoError(t, err)
	require.NoError(t, local.Put(ctx, "media/a.jpg", []byte("x")))
	assert.Equal(t, "http://cdn.local/media/a.jpg", local.URL("media/a.jpg"))

	_, err = openStore(ctx, config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)
}

func TestReadInput_Limit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xff}, 64), 0o600))

	data, err := readInput(searchCmd, path, 64)
	require.NoError(t, err)
	assert.Len(t, data, 64)

	_, err = readInput(searchCmd, path, 63)
	assert.ErrorIs(t, err, imaging.ErrTooLarge)

	searchCmd.SetIn(strings.NewReader("abcdef"))
	t.Cleanup(func() { searchCmd.SetIn(nil) })
	_, err = readInput(searchCmd, "-", 5)
	assert.ErrorIs(t, err, imaging.ErrTooLarge)
}

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("https://example.com/a.jpg"))
	assert.True(t, isURL("http://example.com/a.jpg"))
	assert.False(t, isURL("photos/a.jpg"))
	assert.False(t, isURL("-"))
}
