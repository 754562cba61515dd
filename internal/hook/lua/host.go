// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package lua

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/catch-admin/plugin-hook/internal/hook"
	hookapi "github.com/catch-admin/plugin-hook/pkg/hook"
)

// Compile-time interface check.
var _ hook.Host = (*Host)(nil)

// StateProvider exposes the bootstrapped host runtime to hook execution.
type StateProvider interface {
	Ready() bool
	State() *lua.LState
}

// hookUnit holds the source of a loaded hook code unit. Keeping the source
// in memory is what lets after_uninstall run once the file is gone.
type hookUnit struct {
	pkg  string
	code string
}

// Host resolves hook identifiers to Lua source files, loads them, and
// invokes lifecycle methods. Units are cached by package name.
type Host struct {
	factory *StateFactory
	runtime StateProvider
	ext     string
	units   map[string]*hookUnit
	closed  bool
}

// Option configures the Host.
type Option func(*Host)

// WithRuntime lets hooks execute inside the bootstrapped host runtime when
// it is ready. Without it every invocation runs sandboxed.
func WithRuntime(sp StateProvider) Option {
	return func(h *Host) {
		h.runtime = sp
	}
}

// WithExtension overrides the source-file extension (default ".lua").
func WithExtension(ext string) Option {
	return func(h *Host) {
		h.ext = ext
	}
}

// NewHost creates a hook host.
func NewHost(opts ...Option) *Host {
	h := &Host{
		factory: NewStateFactory(),
		ext:     ".lua",
		units:   make(map[string]*hookUnit),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load resolves and loads the package's hook unit. Idempotent: an already
// cached unit reports loaded without touching the disk. A package that
// declares no hook, or whose hook file does not exist, is a silent no-op.
func (h *Host) Load(ctx context.Context, desc *hook.Descriptor) (bool, error) {
	if h.closed {
		return false, oops.In("lua").With("package", desc.Name).With("operation", "load").New("host is closed")
	}

	if _, ok := h.units[desc.Name]; ok {
		return true, nil
	}

	entryPath, ok := h.entryPath(desc)
	if !ok {
		slog.Debug("no hook unit found for package",
			"package", desc.Name,
			"hook", desc.Hook)
		return false, nil
	}

	code, err := os.ReadFile(filepath.Clean(entryPath))
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with removal; treated the same as an absent hook.
			return false, nil
		}
		return false, oops.In("lua").With("package", desc.Name).With("operation", "load").With("path", entryPath).Hint("failed to read hook file").Wrap(err)
	}

	// Validate by executing in a throwaway sandboxed state before caching.
	L, err := h.factory.NewState(ctx)
	if err != nil {
		return false, oops.In("lua").With("package", desc.Name).With("operation", "load").Hint("failed to create validation state").Wrap(err)
	}
	defer L.Close()

	if err := L.DoString(string(code)); err != nil {
		return false, oops.In("lua").With("package", desc.Name).With("operation", "load").With("path", entryPath).Hint("hook unit failed to load").Wrap(err)
	}

	h.units[desc.Name] = &hookUnit{
		pkg:  desc.Name,
		code: string(code),
	}
	return true, nil
}

// Invoke calls one lifecycle method on the package's hook unit, preferring a
// cached unit over a fresh load. Absent unit or absent method is a silent
// no-op; an error raised by the method body propagates.
func (h *Host) Invoke(ctx context.Context, desc *hook.Descriptor, method hookapi.Method, hctx hookapi.Context) error {
	if h.closed {
		return oops.In("lua").With("package", desc.Name).With("operation", "invoke").New("host is closed")
	}

	unit, ok := h.units[desc.Name]
	if !ok {
		loaded, err := h.Load(ctx, desc)
		if err != nil {
			return err
		}
		if !loaded {
			return nil
		}
		unit = h.units[desc.Name]
	}

	L, owned, err := h.state(ctx)
	if err != nil {
		return oops.In("lua").With("package", desc.Name).With("operation", "invoke").Wrap(err)
	}
	if owned {
		defer L.Close()
	} else {
		// The runtime state is shared across plugins; reset the lifecycle
		// globals so this unit cannot resolve a method another plugin
		// defined, and leave none behind for the next one.
		clearMethods(L)
		defer clearMethods(L)
	}

	if err := L.DoString(unit.code); err != nil {
		return oops.In("lua").With("package", desc.Name).With("method", string(method)).Hint("hook unit failed to load").Wrap(err)
	}

	fn := L.GetGlobal(string(method))
	if fn.Type() == lua.LTNil {
		slog.Debug("hook unit does not implement method",
			"package", desc.Name,
			"method", string(method))
		return nil
	}

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, h.contextTable(L, hctx)); err != nil {
		return oops.In("lua").With("package", desc.Name).With("method", string(method)).Wrap(err)
	}
	return nil
}

// Loaded reports whether a unit is cached for the package.
func (h *Host) Loaded(name string) bool {
	_, ok := h.units[name]
	return ok
}

// Close shuts down the host and drops all cached units.
func (h *Host) Close(_ context.Context) error {
	h.closed = true
	h.units = nil
	return nil
}

// clearMethods nils every lifecycle method global in a shared state.
func clearMethods(L *lua.LState) {
	for _, m := range hookapi.Methods() {
		L.SetGlobal(string(m), lua.LNil)
	}
}

// state picks the execution environment: the bootstrapped runtime when
// available, otherwise a fresh sandbox owned by the caller.
func (h *Host) state(ctx context.Context) (L *lua.LState, owned bool, err error) {
	if h.runtime != nil && h.runtime.Ready() {
		return h.runtime.State(), false, nil
	}
	L, err = h.factory.NewState(ctx)
	return L, true, err
}

// entryPath resolves the hook identifier against the package's source-root
// map. Longer prefixes are tried first; the first candidate that exists on
// disk wins.
func (h *Host) entryPath(desc *hook.Descriptor) (string, bool) {
	if desc.Hook == "" {
		return "", false
	}

	type mapping struct{ prefix, dir string }
	roots := make([]mapping, 0, len(desc.SourceRoots))
	for prefix, dir := range desc.SourceRoots {
		roots = append(roots, mapping{prefix, dir})
	}
	sort.Slice(roots, func(i, j int) bool {
		if len(roots[i].prefix) != len(roots[j].prefix) {
			return len(roots[i].prefix) > len(roots[j].prefix)
		}
		return roots[i].prefix < roots[j].prefix
	})

	for _, root := range roots {
		suffix, ok := trimNamespace(desc.Hook, root.prefix)
		if !ok {
			continue
		}
		rel := strings.ReplaceAll(suffix, ".", string(filepath.Separator)) + h.ext
		candidate := filepath.Join(desc.Path, root.dir, rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// trimNamespace strips a dotted namespace prefix from a hook identifier,
// matching only at segment boundaries. An empty prefix matches everything.
func trimNamespace(ident, prefix string) (string, bool) {
	if prefix == "" {
		return ident, true
	}
	if !strings.HasPrefix(ident, prefix+".") {
		return "", false
	}
	return ident[len(prefix)+1:], true
}

// contextTable builds the single argument passed to a lifecycle method.
// Version is omitted for uninstall-phase contexts; previous_version is
// present only on update-phase contexts.
func (h *Host) contextTable(L *lua.LState, hctx hookapi.Context) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "name", lua.LString(hctx.Name))
	if hctx.Version != "" {
		L.SetField(t, "version", lua.LString(hctx.Version))
	}
	if hctx.PreviousVersion != "" {
		L.SetField(t, "previous_version", lua.LString(hctx.PreviousVersion))
	}
	L.SetField(t, "path", lua.LString(hctx.Path))
	return t
}
