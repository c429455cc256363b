package engine

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vpt "github.com/meigma/vpt/core"
	"github.com/meigma/vpt/core/testutil"
)

const testVendor uint32 = 0x1234_5678

// emptyModule is the smallest valid WebAssembly module.
var emptyModule = []byte("\x00asm\x01\x00\x00\x00")

// answerModule exports a function "answer" returning i32 42.
var answerModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f, // type: () -> i32
	0x03, 0x02, 0x01, 0x00, // function: type 0
	0x07, 0x0a, 0x01, 0x06, 'a', 'n', 's', 'w', 'e', 'r', 0x00, 0x00, // export "answer"
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b, // code: i32.const 42
}

// memoryModule declares a memory with 2 initial pages.
var memoryModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x02, // memory: min 2 pages, no max
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	ctx := context.Background()
	e, err := New(ctx, append([]Option{WithInterpreter()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func buildView(t *testing.T, programs ...testutil.TestProgram) vpt.View {
	t.Helper()

	b := vpt.NewBuilder(testVendor)
	for _, p := range programs {
		b.AddString(p.Name, p.Payload)
	}
	table, err := b.Build()
	require.NoError(t, err)
	view, err := vpt.Validate(table, testVendor)
	require.NoError(t, err)
	return view
}

func TestLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t)
	view := buildView(t,
		testutil.TestProgram{Name: "lib/answer", Payload: answerModule},
		testutil.TestProgram{Name: "empty", Payload: emptyModule},
	)

	set, err := e.Load(ctx, view)
	require.NoError(t, err)
	t.Cleanup(func() { _ = set.Close(ctx) })

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"lib/answer", "empty"}, set.Names(), "table order preserved")

	m, ok := set.Module("lib/answer")
	require.True(t, ok)
	assert.Equal(t, "lib/answer", m.Name())
	assert.Equal(t, []string{"answer"}, m.Exports())
	assert.NotNil(t, m.Compiled())

	m, ok = set.Module("empty")
	require.True(t, ok)
	assert.Empty(t, m.Exports())

	_, ok = set.Module("missing")
	assert.False(t, ok)
}

func TestLoadEmptyTable(t *testing.T) {
	t.Parallel()

	set, err := newTestEngine(t).Load(context.Background(), buildView(t))
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	assert.Empty(t, set.Names())
	require.NoError(t, set.Close(context.Background()))
}

func TestInstantiate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t)
	set, err := e.Load(ctx, buildView(t, testutil.TestProgram{Name: "main", Payload: answerModule}))
	require.NoError(t, err)

	mod, err := set.Instantiate(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "main", mod.Name())

	results, err := mod.ExportedFunction("answer").Call(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(42), results[0])

	_, err = set.Instantiate(ctx, "main")
	require.Error(t, err, "the name is taken while the instance is open")

	require.NoError(t, mod.Close(ctx))
	mod, err = set.Instantiate(ctx, "main")
	require.NoError(t, err)
	require.NoError(t, mod.Close(ctx))

	_, err = set.Instantiate(ctx, "nope")
	require.ErrorIs(t, err, ErrModuleNotFound)
}

func TestLoadDuplicateName(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	view := buildView(t,
		testutil.TestProgram{Name: "main", Payload: emptyModule},
		testutil.TestProgram{Name: "main", Payload: answerModule},
	)

	_, err := e.Load(context.Background(), view)
	require.ErrorIs(t, err, ErrDuplicateName)
	assert.Contains(t, err.Error(), `"main"`)
}

func TestLoadCompileError(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	view := buildView(t,
		testutil.TestProgram{Name: "ok", Payload: emptyModule},
		testutil.TestProgram{Name: "broken", Payload: []byte("not wasm")},
	)

	_, err := e.Load(context.Background(), view)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `compile "broken"`)
}

func TestLoadTruncated(t *testing.T) {
	t.Parallel()

	raw := testutil.NewRawTable(testVendor, testutil.TestProgram{Name: "main", Payload: emptyModule})
	raw.Count = testutil.Count(3)
	view, err := vpt.Validate(raw.Encode(), testVendor)
	require.NoError(t, err)

	_, err = newTestEngine(t).Load(context.Background(), view)
	require.ErrorIs(t, err, vpt.ErrTruncated)
}

func TestLoadCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	view := buildView(t, testutil.TestProgram{Name: "main", Payload: emptyModule})
	_, err := newTestEngine(t).Load(ctx, view)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	view := buildView(t, testutil.TestProgram{Name: "mem", Payload: memoryModule})

	set, err := newTestEngine(t, WithMemoryLimitPages(1)).Load(ctx, view)
	if err == nil {
		// wazero may defer the limit check to instantiation.
		_, err = set.Instantiate(ctx, "mem")
	}
	require.Error(t, err, "2 initial pages exceed a 1 page limit")

	set, err = newTestEngine(t, WithMemoryLimitPages(4)).Load(ctx, view)
	require.NoError(t, err)
	mod, err := set.Instantiate(ctx, "mem")
	require.NoError(t, err)
	assert.Equal(t, uint32(2*65536), mod.Memory().Size())
}

func TestNewRejectsOversizedLimit(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), WithMemoryLimitPages(65537))
	require.Error(t, err)
}

func TestLoadLogs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := newTestEngine(t, WithLogger(logger))

	_, err := e.Load(context.Background(), buildView(t, testutil.TestProgram{Name: "main", Payload: emptyModule}))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "compiled program")
	assert.Contains(t, buf.String(), "loaded program table")
}
