// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package hook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/catch-admin/plugin-hook/pkg/hook"
)

func TestMethods_CoversEveryLifecyclePhase(t *testing.T) {
	methods := hook.Methods()
	assert.Len(t, methods, 6)

	seen := make(map[hook.Method]bool)
	for _, m := range methods {
		seen[m] = true
	}
	assert.True(t, seen[hook.BeforeInstall])
	assert.True(t, seen[hook.AfterInstall])
	assert.True(t, seen[hook.BeforeUpdate])
	assert.True(t, seen[hook.AfterUpdate])
	assert.True(t, seen[hook.BeforeUninstall])
	assert.True(t, seen[hook.AfterUninstall])
}

func TestMethod_NamesAreLuaIdentifiers(t *testing.T) {
	for _, m := range hook.Methods() {
		assert.Regexp(t, `^[a-z][a-z_]*$`, string(m))
	}
}
