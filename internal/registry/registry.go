// Package registry implements the Plugin Registry: a name-to-entry
// mapping built once from config, where each entry is a tagged union of a
// native handler or a compiled WASM module (spec.md §4.3).
package registry

import (
	"fmt"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
	"github.com/cardinal-rs/cardinal/internal/config"
	"github.com/cardinal-rs/cardinal/internal/filter"
	"github.com/cardinal-rs/cardinal/internal/wasmhost"
)

// Registry is an immutable, O(1)-lookup name-to-filter table.
type Registry struct {
	entries map[string]filter.Filter
}

// BuiltinFactory constructs a native filter from its declared name. The
// caller supplies the set of factories available at startup (see
// internal/builtinfilters for Cardinal's own set).
type BuiltinFactory func(name string) (filter.Filter, error)

// Build constructs a Registry from the [[plugins]] config section. Every
// builtin name must resolve via builtins; every wasm module must load and
// validate through runtime. Any failure here is a fatal startup error,
// per spec.md §4.3 ("missing-name lookups... are fatal startup errors").
func Build(plugins []config.PluginConfig, builtins BuiltinFactory, runtime *wasmhost.Runtime) (*Registry, error) {
	entries := make(map[string]filter.Filter, len(plugins))
	for i, p := range plugins {
		switch {
		case p.Builtin != nil:
			f, err := builtins(p.Builtin.Name)
			if err != nil {
				return nil, &cardinalerr.ConfigError{Reason: fmt.Sprintf("plugins[%d]: builtin %q: %v", i, p.Builtin.Name, err)}
			}
			entries[p.Builtin.Name] = f
		case p.Wasm != nil:
			f, err := wasmhost.LoadFilter(runtime, p.Wasm.Name, p.Wasm.Path)
			if err != nil {
				return nil, &cardinalerr.ConfigError{Reason: fmt.Sprintf("plugins[%d]: wasm %q: %v", i, p.Wasm.Name, err)}
			}
			entries[p.Wasm.Name] = f
		default:
			return nil, &cardinalerr.ConfigError{Reason: fmt.Sprintf("plugins[%d]: neither builtin nor wasm set", i)}
		}
	}
	return &Registry{entries: entries}, nil
}

// Lookup resolves a plugin name to its executable filter.
func (r *Registry) Lookup(name string) (filter.Filter, bool) {
	f, ok := r.entries[name]
	return f, ok
}

// Resolve turns an ordered list of plugin names into an ordered list of
// filters, failing fatally (ConfigError) if any name is unresolved — used
// for the global chains at proxy host startup and for a destination's
// chain on each request.
func (r *Registry) Resolve(names []string) ([]filter.Filter, error) {
	out := make([]filter.Filter, 0, len(names))
	for _, n := range names {
		f, ok := r.Lookup(n)
		if !ok {
			return nil, &cardinalerr.ConfigError{Reason: fmt.Sprintf("unresolved plugin name %q", n)}
		}
		out = append(out, f)
	}
	return out, nil
}
