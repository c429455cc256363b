package vpt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vpt/core/testutil"
)

func TestCreate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string][]byte{
		"main.luac":     []byte("main bytecode"),
		"lib/util.luac": []byte("util bytecode"),
		"README":        []byte("not bytecode"),
	})

	table, err := Create(context.Background(), dir, testVendor, CreateWithTrimExt(".luac"))
	require.NoError(t, err)

	v, err := Validate(table, testVendor, WithStrictLayout())
	require.NoError(t, err)

	var names []string
	for p := range v.Programs() {
		names = append(names, string(p.Name()))
	}
	assert.Equal(t, []string{"README", "lib/util", "main"}, names)

	p, ok := v.Lookup("lib/util")
	require.True(t, ok)
	assert.Equal(t, []byte("util bytecode"), p.Payload())
}

func TestCreateDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[string][]byte{}
	for _, name := range []string{"a", "b/c", "b/d", "e/f/g", "z"} {
		files[name] = []byte("payload " + name)
	}
	testutil.WriteFiles(t, dir, files)

	first, err := Create(context.Background(), dir, testVendor, CreateWithConcurrency(1))
	require.NoError(t, err)
	second, err := Create(context.Background(), dir, testVendor, CreateWithConcurrency(8))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCreateEmptyDir(t *testing.T) {
	t.Parallel()

	table, err := Create(context.Background(), t.TempDir(), testVendor)
	require.NoError(t, err)
	assert.Len(t, table, HeaderSize)
}

func TestCreateMissingDir(t *testing.T) {
	t.Parallel()

	_, err := Create(context.Background(), filepath.Join(t.TempDir(), "missing"), testVendor)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateMaxFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string][]byte{"a": {1}, "b": {2}, "c": {3}})

	_, err := Create(context.Background(), dir, testVendor, CreateWithMaxFiles(2))
	require.ErrorIs(t, err, ErrTooManyFiles)

	table, err := Create(context.Background(), dir, testVendor, CreateWithMaxFiles(3))
	require.NoError(t, err)
	v, err := Validate(table, testVendor)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Len())

	_, err = Create(context.Background(), dir, testVendor, CreateWithMaxFiles(-1))
	require.NoError(t, err)
}

func TestCreateMaxPayloadSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string][]byte{"big": make([]byte, 100)})

	_, err := Create(context.Background(), dir, testVendor, CreateWithMaxPayloadSize(99))
	require.ErrorIs(t, err, ErrSizeOverflow)

	_, err = Create(context.Background(), dir, testVendor, CreateWithMaxPayloadSize(100))
	require.NoError(t, err)
}

func TestCreateSkipsSymlinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string][]byte{"real": []byte("real")})
	outside := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))
	if err := os.Symlink(outside, filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	table, err := Create(context.Background(), dir, testVendor)
	require.NoError(t, err)
	v, err := Validate(table, testVendor)
	require.NoError(t, err)

	assert.Equal(t, 1, v.Len())
	_, ok := v.Lookup("link")
	assert.False(t, ok)
}

func TestCreateCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string][]byte{"a": {1}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Create(ctx, dir, testVendor)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCreateTrimExtKeepsUnmatched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string][]byte{
		".luac":      []byte("bare extension"),
		"sub/.luac":  []byte("bare in dir"),
		"x.luac.bak": []byte("suffix elsewhere"),
		"mod.luac":   []byte("trimmed"),
	})

	table, err := Create(context.Background(), dir, testVendor, CreateWithTrimExt(".luac"))
	require.NoError(t, err)
	v, err := Validate(table, testVendor)
	require.NoError(t, err)

	var names []string
	for p := range v.Programs() {
		names = append(names, string(p.Name()))
	}
	assert.Equal(t, []string{".luac", "mod", "sub/.luac", "x.luac.bak"}, names)
}

func TestCreateWithPrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string][]byte{
		"util.luac": []byte("util bytecode"),
		"x/y":       []byte("nested"),
	})

	for _, prefix := range []string{"lib/std", "/lib//std/"} {
		table, err := Create(context.Background(), dir, testVendor,
			CreateWithPrefix(prefix), CreateWithTrimExt(".luac"))
		require.NoError(t, err)
		v, err := Validate(table, testVendor)
		require.NoError(t, err)

		var names []string
		for p := range v.Programs() {
			names = append(names, string(p.Name()))
		}
		assert.Equal(t, []string{"lib/std/util", "lib/std/x/y"}, names, prefix)
	}

	table, err := Create(context.Background(), dir, testVendor, CreateWithPrefix("/"))
	require.NoError(t, err)
	v, err := Validate(table, testVendor)
	require.NoError(t, err)
	_, ok := v.Lookup("util.luac")
	assert.True(t, ok, "a root prefix adds nothing")
}
