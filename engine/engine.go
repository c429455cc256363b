package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	vpt "github.com/meigma/vpt/core"
)

// Engine compiles program payloads with a wazero runtime.
//
// An Engine is safe for concurrent use. Modules compiled by an Engine are
// only valid until the Engine is closed.
type Engine struct {
	runtime wazero.Runtime
	logger  *slog.Logger
}

// New creates an Engine backed by a new wazero runtime.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.interpreter {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	}
	if cfg.memoryLimitPages > 0 {
		if cfg.memoryLimitPages > 65536 {
			return nil, fmt.Errorf("engine: memory limit %d pages exceeds 65536", cfg.memoryLimitPages)
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		logger:  cfg.logger,
	}, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}

// Close releases the runtime and every module it compiled.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Load compiles every program in view, in table order.
//
// A table whose records end before its program count is rejected with
// vpt.ErrTruncated. Duplicate names are rejected with ErrDuplicateName.
// On error, modules compiled so far are released.
func (e *Engine) Load(ctx context.Context, view vpt.View) (*ModuleSet, error) {
	set := &ModuleSet{
		engine: e,
		byName: make(map[string]*Module),
	}

	for p, err := range view.ProgramsStrict() {
		if err != nil {
			return nil, errors.Join(fmt.Errorf("engine: %w", err), set.Close(ctx))
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(err, set.Close(ctx))
		}

		name := string(p.Name())
		if _, ok := set.byName[name]; ok {
			return nil, errors.Join(fmt.Errorf("%w: %q", ErrDuplicateName, name), set.Close(ctx))
		}

		compiled, err := e.runtime.CompileModule(ctx, p.Payload())
		if err != nil {
			return nil, errors.Join(fmt.Errorf("engine: compile %q: %w", name, err), set.Close(ctx))
		}

		m := &Module{name: name, compiled: compiled}
		set.modules = append(set.modules, m)
		set.byName[name] = m
		e.log().Debug("compiled program", "name", name, "size", len(p.Payload()))
	}

	e.log().Info("loaded program table", "programs", len(set.modules), "size", view.Size())
	return set, nil
}

// Module is one compiled program.
type Module struct {
	name     string
	compiled wazero.CompiledModule
}

// Name returns the program name.
func (m *Module) Name() string {
	return m.name
}

// Compiled returns the underlying wazero module.
func (m *Module) Compiled() wazero.CompiledModule {
	return m.compiled
}

// Exports returns the names of the module's exported functions, sorted.
func (m *Module) Exports() []string {
	return slices.Sorted(maps.Keys(m.compiled.ExportedFunctions()))
}

// ModuleSet holds the modules compiled from one table.
type ModuleSet struct {
	engine  *Engine
	modules []*Module
	byName  map[string]*Module
}

// Module returns the module compiled from the named program.
func (s *ModuleSet) Module(name string) (*Module, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// Names returns program names in table order.
func (s *ModuleSet) Names() []string {
	names := make([]string, len(s.modules))
	for i, m := range s.modules {
		names[i] = m.name
	}
	return names
}

// Len returns the number of modules.
func (s *ModuleSet) Len() int {
	return len(s.modules)
}

// Instantiate instantiates the named module under its program name.
//
// A name can be instantiated once per Engine at a time; close the returned
// module before instantiating it again.
func (s *ModuleSet) Instantiate(ctx context.Context, name string) (api.Module, error) {
	m, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModuleNotFound, name)
	}
	mod, err := s.engine.runtime.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, fmt.Errorf("engine: instantiate %q: %w", name, err)
	}
	return mod, nil
}

// Close releases every compiled module in the set.
func (s *ModuleSet) Close(ctx context.Context) error {
	var errs []error
	for _, m := range s.modules {
		if err := m.compiled.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("engine: close %q: %w", m.name, err))
		}
	}
	s.modules = nil
	clear(s.byName)
	return errors.Join(errs...)
}
