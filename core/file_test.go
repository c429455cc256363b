package vpt

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vpt/core/internal/sizing"
	"github.com/meigma/vpt/core/testutil"
)

func TestWriteReadFile(t *testing.T) {
	t.Parallel()

	table := buildTestTable(t, testVendor,
		testutil.TestProgram{Name: "main", Payload: []byte{0, 1, 2}},
		testutil.TestProgram{Name: "lib", Payload: []byte("lib")},
	)
	path := filepath.Join(t.TempDir(), "nested", "dir", "programs.vpt")

	require.NoError(t, WriteFile(path, table))

	v, err := ReadFile(path, testVendor)
	require.NoError(t, err)
	assert.Equal(t, table, v.Bytes())
	assert.True(t, sizing.IsSliceAligned(v.Bytes()))
	assert.Equal(t, 2, v.Len())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are cleaned up")
}

func TestWriteFileReplaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "programs.vpt")
	require.NoError(t, WriteFile(path, buildTestTable(t, testVendor)))

	next := buildTestTable(t, testVendor, testutil.TestProgram{Name: "new", Payload: []byte("x")})
	require.NoError(t, WriteFile(path, next))

	v, err := ReadFile(path, testVendor)
	require.NoError(t, err)
	_, ok := v.Lookup("new")
	assert.True(t, ok)
}

func TestReadFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	table := buildTestTable(t, testVendor, testutil.TestProgram{Name: "m", Payload: make([]byte, 64)})
	path := filepath.Join(dir, "programs.vpt")
	require.NoError(t, WriteFile(path, table))

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		_, err := ReadFile(filepath.Join(dir, "missing.vpt"), testVendor)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("vendor mismatch", func(t *testing.T) {
		t.Parallel()

		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))
		_, err := ReadFile(path, testVendor+1, ReadWithLogger(logger))
		require.ErrorIs(t, err, ErrVendorMismatch)
		assert.Contains(t, err.Error(), path)
		assert.Contains(t, logs.String(), "rejected program table")
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		_, err := ReadFile(path, testVendor, ReadWithMaxSize(uint64(len(table)-1)))
		require.ErrorIs(t, err, ErrSizeOverflow)

		_, err = ReadFile(path, testVendor, ReadWithMaxSize(uint64(len(table))))
		require.NoError(t, err)
	})

	t.Run("validate options", func(t *testing.T) {
		t.Parallel()
		_, err := ReadFile(path, testVendor, ReadWithValidateOptions(WithConsumerVersion(Version{Major: 1})))
		require.ErrorIs(t, err, ErrVersionMismatch)
	})
}
