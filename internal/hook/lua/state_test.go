// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package lua_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"

	hostlua "github.com/catch-admin/plugin-hook/internal/hook/lua"
)

func TestStateFactory_SafeLibrariesAvailable(t *testing.T) {
	f := hostlua.NewStateFactory()
	L, err := f.NewState(context.Background())
	require.NoError(t, err)
	defer L.Close()

	err = L.DoString(`
local s = string.upper("hook")
local n = math.max(1, 2)
local t = {}
table.insert(t, s)
result = t[1] .. tostring(n)
`)
	require.NoError(t, err)
	assert.Equal(t, glua.LString("HOOK2"), L.GetGlobal("result"))
}

func TestStateFactory_UnsafeLibrariesBlocked(t *testing.T) {
	f := hostlua.NewStateFactory()
	L, err := f.NewState(context.Background())
	require.NoError(t, err)
	defer L.Close()

	for _, lib := range []string{"os", "io", "debug", "package"} {
		assert.Equal(t, glua.LTNil, L.GetGlobal(lib).Type(), "library %s should be blocked", lib)
	}
}

func TestStateFactory_FilesystemFunctionsBlocked(t *testing.T) {
	f := hostlua.NewStateFactory()
	L, err := f.NewState(context.Background())
	require.NoError(t, err)
	defer L.Close()

	for _, fn := range []string{"dofile", "loadfile", "loadstring", "load"} {
		assert.Equal(t, glua.LTNil, L.GetGlobal(fn).Type(), "function %s should be blocked", fn)
	}
}

func TestStateFactory_FreshStatePerCall(t *testing.T) {
	f := hostlua.NewStateFactory()

	first, err := f.NewState(context.Background())
	require.NoError(t, err)
	defer first.Close()
	require.NoError(t, first.DoString(`leak = "value"`))

	second, err := f.NewState(context.Background())
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, glua.LTNil, second.GetGlobal("leak").Type(), "states must not share globals")
}
