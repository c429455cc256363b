package vpt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/vpt/core/internal/platform"
)

// Create builds a table from the regular files under dir.
//
// Each file becomes one program named by its slash-separated path relative
// to dir, with the payload being the file contents. Programs are added in
// lexical path order, so the same tree always produces the same table.
// Symbolic links and other non-regular files are skipped. Payload files are
// read concurrently; see CreateWithConcurrency.
//
// The context can be used for cancellation of long-running table creation.
func Create(ctx context.Context, dir string, vendorID uint32, opts ...CreateOption) ([]byte, error) {
	cfg := createConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxFiles == 0 {
		cfg.maxFiles = DefaultMaxFiles
	}
	if cfg.maxPayloadSize <= 0 {
		cfg.maxPayloadSize = math.MaxUint32
	}
	if cfg.concurrency < 1 {
		cfg.concurrency = runtime.GOMAXPROCS(0)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	w := &creator{cfg: cfg, logger: cfg.logger}
	w.log().Info("creating program table", "dir", dir, "vendor_id", vendorID)

	paths, err := w.collect(ctx, root)
	if err != nil {
		return nil, err
	}

	payloads, err := w.readPayloads(ctx, root, paths)
	if err != nil {
		return nil, err
	}

	b := NewBuilder(vendorID)
	for i, path := range paths {
		b.AddString(w.programName(path), payloads[i])
	}
	table, err := b.Build()
	if err != nil {
		return nil, err
	}

	w.log().Debug("program table created", "programs", len(paths), "size", len(table))
	return table, nil
}

// creator holds state for table creation.
type creator struct {
	cfg    createConfig
	logger *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (w *creator) log() *slog.Logger {
	if w.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.logger
}

// collect walks the tree and returns the slash paths of regular files in
// lexical order.
func (w *creator) collect(ctx context.Context, root *os.Root) ([]string, error) {
	var paths []string
	err := fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			w.log().Debug("skipped non-regular file", "path", path)
			return nil
		}
		if w.cfg.maxFiles > 0 && len(paths) >= w.cfg.maxFiles {
			return ErrTooManyFiles
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// readPayloads reads every path concurrently. The result is indexed like paths.
func (w *creator) readPayloads(ctx context.Context, root *os.Root, paths []string) ([][]byte, error) {
	payloads := make([][]byte, len(paths))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.cfg.concurrency)
	for i, path := range paths {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := platform.ReadFileNoFollow(root, filepath.FromSlash(path), w.cfg.maxPayloadSize)
			if err != nil {
				if errors.Is(err, platform.ErrFileTooLarge) {
					return fmt.Errorf("%w: %v", ErrSizeOverflow, err)
				}
				return fmt.Errorf("read %s: %w", path, err)
			}
			payloads[i] = data
			w.log().Debug("read payload", "path", path, "size", len(data))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

// programName returns the program name for a slash path.
func (w *creator) programName(path string) string {
	name := path
	if w.cfg.trimExt != "" {
		if trimmed, ok := strings.CutSuffix(path, w.cfg.trimExt); ok && trimmed != "" && !strings.HasSuffix(trimmed, "/") {
			name = trimmed
		}
	}
	if w.cfg.prefix != "" {
		name = w.cfg.prefix + "/" + name
	}
	return name
}
