// Package engine compiles the programs of a validated table into
// WebAssembly modules.
//
// An Engine wraps a single wazero runtime. Load compiles every program of
// a vpt.View in table order and returns a ModuleSet keyed by program name:
//
//	eng, err := engine.New(ctx, engine.WithMemoryLimitPages(256))
//	set, err := eng.Load(ctx, view)
//	mod, err := set.Instantiate(ctx, "main")
//
// Program names must be unique within a table; Load rejects duplicates
// with ErrDuplicateName.
package engine
