package tempfiles

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpool(t *testing.T) {
	dir := t.TempDir()

	rc, n, err := Spool(dir, "spool-*", strings.NewReader("media bytes"), 64)
	require.NoError(t, err)
	require.Equal(t, int64(11), n)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "media bytes", string(data))

	// Rewindable so a store can retry the upload.
	_, err = rc.Seek(0, io.SeekStart)
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "media bytes", string(data))

	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSpoolCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "spool")

	rc, n, err := Spool(dir, "spool-*", strings.NewReader(""), 0)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, rc.Close())
}

func TestSpoolRejectsOversized(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Spool(dir, "spool-*", strings.NewReader("0123456789"), 4)
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSpoolCleansUpOnReadError(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Spool(dir, "spool-*", failingReader{}, 0)
	require.ErrorContains(t, err, "connection reset")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
