package files_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/landrop/landrop/internal/files"
)

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	info, err := files.ValidateFile(path)
	require.NoError(t, err)
	require.Equal(t, "notes.txt", info.Name)
	require.Equal(t, int64(5), info.Size)
	require.Contains(t, info.Type, "text/plain")
	require.True(t, filepath.IsAbs(info.Path))
}

func TestValidateFileMissing(t *testing.T) {
	_, err := files.ValidateFile(filepath.Join(t.TempDir(), "nope.bin"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "File not found")
}

func TestValidateFileDirectory(t *testing.T) {
	_, err := files.ValidateFile(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "is a directory")
}

func TestValidateFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	info, err := files.ValidateFile(path)
	require.NoError(t, err)
	require.Zero(t, info.Size)
	require.Equal(t, "application/octet-stream", info.Type)
}

func TestValidateFileUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.wxyz")
	require.NoError(t, os.WriteFile(path, []byte{0x00}, 0o644))

	info, err := files.ValidateFile(path)
	require.NoError(t, err)
	require.Equal(t, "application/octet-stream", info.Type)
}
