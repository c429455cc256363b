package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/opencontainers/go-digest"

	vpt "github.com/meigma/vpt/core"
	"github.com/meigma/vpt/core/testutil"
	"github.com/meigma/vpt/registry/cache"
	"github.com/meigma/vpt/registry/cache/disk"
)

const (
	cacheNone  = "none"
	profVendor = 0x5650_5400
)

type config struct {
	mode        string
	programs    int
	payloadSize int
	dirCount    int
	pattern     string
	fgProfile   string
	duration    time.Duration
	iterations  int
	pprofAddr   string
	cpuProfile  string
	memProfile  string
	traceFile   string
	cache       string
	cacheDir    string
	readRandom  bool
	tempDir     string
	keepTemp    bool
	randomSeed  int64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes   []byte
	sinkProgram vpt.Program
	sinkView    vpt.View
	sinkCount   int
)

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	names, err := makeFiles(dir, cfg.programs, cfg.payloadSize, cfg.dirCount, cfg.pattern, cfg.randomSeed)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}

	table, err := vpt.Create(context.Background(), dir, profVendor)
	if err != nil {
		log.Fatal(err)
	}

	var stopFG func() error
	if cfg.fgProfile != "" {
		fgFile, fgErr := os.Create(cfg.fgProfile)
		if fgErr != nil {
			log.Fatal(fgErr)
		}
		stopFG = fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			_ = fgFile.Close()
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, table, names, dir)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode,
		stats.ops,
		stats.bytes,
		stats.elapsed,
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, table []byte, names []string, rootDir string) (profileStats, error) {
	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	view, err := vpt.Validate(table, profVendor)
	if err != nil {
		return profileStats{}, err
	}

	switch cfg.mode {
	case "validate", "validate-strict":
		var opts []vpt.ValidateOption
		if cfg.mode == "validate-strict" {
			opts = append(opts, vpt.WithStrictLayout())
		}
		for shouldContinue() {
			v, err := vpt.Validate(table, profVendor, opts...)
			if err != nil {
				return profileStats{}, err
			}
			sinkView = v
			byteCount += int64(len(table))
			ops++
		}

	case "lookup":
		rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		for shouldContinue() {
			name := pickName(names, ops, rng, cfg.readRandom)
			p, ok := view.Lookup(name)
			if !ok {
				return profileStats{}, fmt.Errorf("missing program %q", name)
			}
			sinkProgram = p
			byteCount += int64(len(p.Payload()))
			ops++
		}

	case "iterate":
		for shouldContinue() {
			count := 0
			for p := range view.Programs() {
				sinkProgram = p
				byteCount += int64(len(p.Payload()))
				count++
			}
			if count != len(names) {
				return profileStats{}, fmt.Errorf("iterated %d programs, want %d", count, len(names))
			}
			sinkCount = count
			ops++
		}

	case "build":
		for shouldContinue() {
			b := vpt.NewBuilder(profVendor)
			for p := range view.Programs() {
				b.Add(p.Name(), p.Payload())
			}
			out, err := b.Build()
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = out
			byteCount += int64(len(out))
			ops++
		}

	case "create":
		for shouldContinue() {
			out, err := vpt.Create(context.Background(), rootDir, profVendor)
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = out
			byteCount += int64(len(out))
			ops++
		}

	case "cache-hit":
		if cfg.cache == cacheNone {
			return profileStats{}, errors.New("cache-hit requires cache")
		}
		c, cleanup, err := newCache(cfg)
		if err != nil {
			return profileStats{}, err
		}
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler

		key := digest.FromBytes(table).String()
		if err := c.Put(key, table); err != nil {
			return profileStats{}, err
		}

		start = time.Now()
		for shouldContinue() {
			data, ok := c.Get(key)
			if !ok {
				return profileStats{}, errors.New("cache miss after put")
			}
			v, err := vpt.Validate(vpt.Aligned(data), profVendor)
			if err != nil {
				return profileStats{}, err
			}
			sinkView = v
			byteCount += int64(len(data))
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.mode, "mode", "lookup", "mode: validate, validate-strict, lookup, iterate, build, create, cache-hit")
	flag.IntVar(&cfg.programs, "programs", 512, "number of programs")
	flag.IntVar(&cfg.payloadSize, "payload-size", 16<<10, "payload size in bytes")
	flag.IntVar(&cfg.dirCount, "dir-count", 16, "number of directories")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.StringVar(&cfg.cache, "cache", "memory", "cache: memory, disk, none")
	flag.StringVar(&cfg.cacheDir, "cache-dir", "", "cache directory (disk cache only)")
	flag.BoolVar(&cfg.readRandom, "read-random", true, "randomize lookup name selection")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for dataset")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	flag.Parse()
	return cfg
}

func pickName(names []string, idx int, rng *rand.Rand, random bool) string {
	if random {
		return names[rng.Intn(len(names))]
	}
	return names[idx%len(names)]
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "vpt-profiler-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// makeFiles writes the payload tree and returns program names as Create
// assigns them.
func makeFiles(dir string, count, size, dirCount int, pattern string, seed int64) ([]string, error) {
	if dirCount <= 0 {
		dirCount = 1
	}
	names := make([]string, 0, count)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // intentional use for reproducible benchmarks
	for i := range count {
		name := fmt.Sprintf("dir%02d/prog%05d.bin", i%dirCount, i)
		fullPath := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil { //nolint:gosec // 0o755 is intentional for profiler
			return nil, err
		}

		content := make([]byte, size)
		switch pattern {
		case "random":
			if _, err := rng.Read(content); err != nil {
				return nil, err
			}
		default:
			fillByte := byte('a' + (i % 26))
			for j := range content {
				content[j] = fillByte
			}
			if len(content) > 0 {
				content[0] = byte(i)
			}
		}

		if err := os.WriteFile(fullPath, content, 0o644); err != nil { //nolint:gosec // 0o644 is intentional for profiler test files
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newCache(cfg config) (cache.BlobCache, func() error, error) {
	switch cfg.cache {
	case cacheNone:
		return nil, nil, errors.New("cache=none should not create a cache")
	case "memory":
		return testutil.NewMockCache(), func() error { return nil }, nil
	case "disk":
		cacheDir := cfg.cacheDir
		autoDir := false
		if cacheDir == "" {
			dir, err := os.MkdirTemp("", "vpt-profiler-cache-*")
			if err != nil {
				return nil, nil, err
			}
			cacheDir = dir
			autoDir = true
		} else if err := os.MkdirAll(cacheDir, 0o755); err != nil { //nolint:gosec // 0o755 is intentional for profiler
			return nil, nil, err
		}

		c, err := disk.New(cacheDir)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() error {
			if autoDir {
				return os.RemoveAll(cacheDir)
			}
			return nil
		}
		return c, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache: %s", cfg.cache)
	}
}
