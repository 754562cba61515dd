// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

// Package lua loads plugin hook units from disk and invokes their lifecycle
// methods through the host application's Lua runtime.
package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// sandboxLibrary is a Lua library safe to load when a hook runs before the
// host runtime is up.
type sandboxLibrary struct {
	name string
	fn   lua.LGFunction
}

// sandboxLibraries returns the reduced-capability library set: base, table,
// string, math. os, io, debug, and package stay blocked; hooks get those
// only through the bootstrapped host runtime.
func sandboxLibraries() []sandboxLibrary {
	return []sandboxLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// blockedBaseFunctions are base-library functions that would let sandboxed
// hook code reach the filesystem.
var blockedBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// StateFactory creates reduced-capability Lua states for hooks that must run
// before the host runtime exists.
type StateFactory struct {
	libraries []sandboxLibrary
}

// NewStateFactory creates a state factory with the default sandbox libraries.
func NewStateFactory() *StateFactory {
	return &StateFactory{libraries: sandboxLibraries()}
}

// NewState creates a fresh sandboxed Lua state.
//
// The ctx parameter is attached to the state so hook code inherits
// cancellation.
func (f *StateFactory) NewState(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	L.SetContext(ctx)

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open library %s: %w", lib.name, err)
		}
	}

	for _, fn := range blockedBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}

	return L, nil
}
