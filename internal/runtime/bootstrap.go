// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

// Package runtime brings up the host application environment for hook
// execution. The environment is expensive and may fail, so it is built
// lazily, at most once per process, and failure is a degraded state rather
// than a fatal one.
package runtime

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// Bootstrapper lazily executes the host's generated dependency loader and
// bootstrap entry point, producing a full-capability Lua state for "after"
// hooks. One Bootstrapper lives for one package-manager invocation.
type Bootstrapper struct {
	loaderPath string
	bootPath   string

	state     *lua.LState
	ready     bool
	attempted bool
}

// NewBootstrapper creates a bootstrapper for the given loader and bootstrap
// entry scripts. Nothing is executed until EnsureReady is called.
func NewBootstrapper(loaderPath, bootPath string) *Bootstrapper {
	return &Bootstrapper{
		loaderPath: loaderPath,
		bootPath:   bootPath,
	}
}

// EnsureReady brings up the host environment if it is not up already and
// reports whether it is available. The bring-up is attempted at most once:
// after a failure, subsequent calls report false without retrying, and
// callers run hooks with reduced capability instead of aborting the batch.
func (b *Bootstrapper) EnsureReady(ctx context.Context) bool {
	if b.ready {
		return true
	}
	if b.attempted {
		return false
	}
	b.attempted = true

	// Full standard libraries: after-hooks get whatever the host application
	// itself can do.
	L := lua.NewState()
	L.SetContext(ctx)

	if err := b.step(L, b.loaderPath); err != nil {
		slog.Warn("runtime bootstrap failed; hooks will run with reduced capability",
			"step", "loader",
			"path", b.loaderPath,
			"error", err)
		L.Close()
		return false
	}

	if err := b.step(L, b.bootPath); err != nil {
		slog.Warn("runtime bootstrap failed; hooks will run with reduced capability",
			"step", "bootstrap",
			"path", b.bootPath,
			"error", err)
		L.Close()
		return false
	}

	if err := b.start(L); err != nil {
		slog.Warn("runtime startup sequence failed; hooks will run with reduced capability",
			"path", b.bootPath,
			"error", err)
		L.Close()
		return false
	}

	b.state = L
	b.ready = true
	slog.Info("host runtime ready",
		"loader", b.loaderPath,
		"bootstrap", b.bootPath)
	return true
}

// step executes one bootstrap script.
func (b *Bootstrapper) step(L *lua.LState, path string) error {
	if err := L.DoFile(path); err != nil {
		return oops.In("runtime").With("path", path).Wrap(err)
	}
	return nil
}

// start invokes the bootstrap entry's startup sequence: a global boot()
// defined by the bootstrap script. A script that defines no boot() is
// considered started by executing.
func (b *Bootstrapper) start(L *lua.LState) error {
	boot := L.GetGlobal("boot")
	if boot.Type() == lua.LTNil {
		return nil
	}
	if err := L.CallByParam(lua.P{
		Fn:      boot,
		NRet:    0,
		Protect: true,
	}); err != nil {
		return oops.In("runtime").With("function", "boot").Wrap(err)
	}
	return nil
}

// Ready reports whether the host environment is up.
func (b *Bootstrapper) Ready() bool {
	return b.ready
}

// State returns the live host state, or nil when not ready.
func (b *Bootstrapper) State() *lua.LState {
	if !b.ready {
		return nil
	}
	return b.state
}

// Close tears down the host state.
func (b *Bootstrapper) Close() {
	if b.state != nil {
		b.state.Close()
		b.state = nil
	}
	b.ready = false
}
