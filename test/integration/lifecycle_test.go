// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	lua "github.com/yuin/gopher-lua"

	"github.com/catch-admin/plugin-hook/internal/hook"
	hooklua "github.com/catch-admin/plugin-hook/internal/hook/lua"
	"github.com/catch-admin/plugin-hook/internal/registry"
	"github.com/catch-admin/plugin-hook/internal/runtime"
)

// bootstrapScript seeds a global table the hooks mutate, so specs can observe
// which lifecycle methods actually ran inside the host runtime.
const bootstrapScript = `
plugin_state = { installs = {}, updates = {}, removed = {} }
function boot()
  boot_count = (boot_count or 0) + 1
end
`

// lifecycleEnv wires the real orchestrator stack against a temp directory.
type lifecycleEnv struct {
	dir     string
	pkgPath string
	boot    *runtime.Bootstrapper
	host    *hooklua.Host
	store   *registry.FileStore
	orch    *hook.Orchestrator
}

func setupLifecycleEnv(hookSource string) *lifecycleEnv {
	dir := GinkgoT().TempDir()

	loaderPath := filepath.Join(dir, "vendor", "loader.lua")
	Expect(os.MkdirAll(filepath.Dir(loaderPath), 0o750)).To(Succeed())
	Expect(os.WriteFile(loaderPath, []byte("-- generated dependency loader\n"), 0o600)).To(Succeed())

	bootPath := filepath.Join(dir, "bootstrap.lua")
	Expect(os.WriteFile(bootPath, []byte(bootstrapScript), 0o600)).To(Succeed())

	pkgPath := filepath.Join(dir, "plugins", "acme-widgets")
	Expect(os.MkdirAll(filepath.Join(pkgPath, "src"), 0o750)).To(Succeed())
	if hookSource != "" {
		Expect(os.WriteFile(filepath.Join(pkgPath, "src", "hook.lua"), []byte(hookSource), 0o600)).To(Succeed())
	}

	resolver, err := hook.NewResolver("catch-plugin")
	Expect(err).NotTo(HaveOccurred())

	boot := runtime.NewBootstrapper(loaderPath, bootPath)
	host := hooklua.NewHost(hooklua.WithRuntime(boot))
	store := registry.NewFileStore(filepath.Join(dir, "installed.json"))

	env := &lifecycleEnv{
		dir:     dir,
		pkgPath: pkgPath,
		boot:    boot,
		host:    host,
		store:   store,
		orch:    hook.NewOrchestrator(resolver, host, boot, store),
	}
	DeferCleanup(func() {
		Expect(env.host.Close(context.Background())).To(Succeed())
		env.boot.Close()
	})
	return env
}

// feed parses and dispatches one NDJSON event line the way the run command does.
func (e *lifecycleEnv) feed(line string) error {
	Expect(hook.ValidateSchema([]byte(line))).To(Succeed())
	ev, err := hook.ParseEvent([]byte(line))
	Expect(err).NotTo(HaveOccurred())
	return e.orch.HandleEvent(context.Background(), ev)
}

func (e *lifecycleEnv) packageEvent(name, version string) string {
	return fmt.Sprintf(`{"event":%q,"package":{"name":"acme/widgets","version":%q,"path":%q,"meta":{"type":"catch-plugin","hook":"acme.widgets.hook","source-roots":{"acme.widgets":"src"}}}}`,
		name, version, e.pkgPath)
}

func (e *lifecycleEnv) updateEvent(name, version, previous string) string {
	return fmt.Sprintf(`{"event":%q,"package":{"name":"acme/widgets","version":%q,"previous-version":%q,"path":%q,"meta":{"type":"catch-plugin","hook":"acme.widgets.hook","source-roots":{"acme.widgets":"src"}}}}`,
		name, version, previous, e.pkgPath)
}

func (e *lifecycleEnv) installed() []registry.Record {
	records, err := e.store.List(context.Background())
	Expect(err).NotTo(HaveOccurred())
	return records
}

// runtimeTable reads a nested table from the bootstrapped runtime state.
func (e *lifecycleEnv) runtimeTable(name string) *lua.LTable {
	Expect(e.boot.Ready()).To(BeTrue(), "runtime must be bootstrapped")
	state, ok := e.boot.State().GetGlobal("plugin_state").(*lua.LTable)
	Expect(ok).To(BeTrue())
	tbl, ok := state.RawGetString(name).(*lua.LTable)
	Expect(ok).To(BeTrue())
	return tbl
}

var _ = Describe("Plugin lifecycle", func() {
	Describe("installing a plugin", func() {
		It("runs after_install in the runtime and records the plugin", func() {
			env := setupLifecycleEnv(`
function before_install(ctx) end
function after_install(ctx)
  plugin_state.installs[ctx.name] = ctx.version
end
`)

			Expect(env.feed(env.packageEvent("pre-install", "1.2.0"))).To(Succeed())
			Expect(env.boot.Ready()).To(BeFalse(), "pre-install must not boot the runtime")
			Expect(env.feed(env.packageEvent("post-install", "1.2.0"))).To(Succeed())
			Expect(env.installed()).To(BeEmpty(), "registry writes wait for the loader rebuild")

			Expect(env.feed(`{"event":"loader-rebuild"}`)).To(Succeed())

			installs := env.runtimeTable("installs")
			Expect(installs.RawGetString("acme/widgets")).To(Equal(lua.LString("1.2.0")))

			records := env.installed()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Name).To(Equal("acme/widgets"))
			Expect(records[0].Version).To(Equal("1.2.0"))
		})
	})

	Describe("a vetoing before_install hook", func() {
		It("aborts the install and leaves no trace", func() {
			env := setupLifecycleEnv(`
function before_install(ctx)
  error("needs v2 feature X")
end
`)

			err := env.feed(env.packageEvent("pre-install", "1.2.0"))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("needs v2 feature X"))

			Expect(env.feed(`{"event":"loader-rebuild"}`)).To(Succeed())
			Expect(env.installed()).To(BeEmpty())
			Expect(env.orch.PendingEmpty()).To(BeTrue())
		})
	})

	Describe("updating a plugin", func() {
		It("boots the runtime for before_update and records the new version", func() {
			env := setupLifecycleEnv(`
function before_update(ctx)
  plugin_state.updates.before = ctx.version
end
function after_update(ctx)
  plugin_state.updates.after = ctx.version
  plugin_state.updates.from = ctx.previous_version
end
`)
			Expect(env.store.Add(context.Background(), registry.Record{
				Name: "acme/widgets", Version: "1.2.0", Type: "catch-plugin", Path: env.pkgPath,
			})).To(Succeed())

			Expect(env.feed(env.updateEvent("pre-update", "2.0.0", "1.2.0"))).To(Succeed())
			Expect(env.boot.Ready()).To(BeTrue(), "before_update runs with full capability")
			Expect(env.feed(env.updateEvent("post-update", "2.0.0", "1.2.0"))).To(Succeed())
			Expect(env.feed(`{"event":"loader-rebuild"}`)).To(Succeed())

			updates := env.runtimeTable("updates")
			Expect(updates.RawGetString("before")).To(Equal(lua.LString("2.0.0")))
			Expect(updates.RawGetString("after")).To(Equal(lua.LString("2.0.0")))
			Expect(updates.RawGetString("from")).To(Equal(lua.LString("1.2.0")))

			records := env.installed()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Version).To(Equal("2.0.0"))

			Expect(env.boot.State().GetGlobal("boot_count")).To(Equal(lua.LNumber(1)),
				"the runtime boots at most once per invocation")
		})
	})

	Describe("uninstalling a plugin", func() {
		It("runs after_uninstall from the preloaded unit after the files are gone", func() {
			env := setupLifecycleEnv(`
function before_uninstall(ctx) end
function after_uninstall(ctx)
  plugin_state.removed[#plugin_state.removed + 1] = ctx.name
end
`)
			Expect(env.store.Add(context.Background(), registry.Record{
				Name: "acme/widgets", Version: "1.2.0", Type: "catch-plugin", Path: env.pkgPath,
			})).To(Succeed())

			Expect(env.feed(env.packageEvent("pre-uninstall", "1.2.0"))).To(Succeed())

			// The package manager deletes the plugin before the rebuild.
			Expect(os.RemoveAll(env.pkgPath)).To(Succeed())

			Expect(env.feed(env.packageEvent("post-uninstall", "1.2.0"))).To(Succeed())
			Expect(env.feed(`{"event":"loader-rebuild"}`)).To(Succeed())

			removed := env.runtimeTable("removed")
			Expect(removed.RawGetInt(1)).To(Equal(lua.LString("acme/widgets")))
			Expect(env.installed()).To(BeEmpty())
		})
	})

	Describe("a package without a hook unit", func() {
		It("installs silently", func() {
			env := setupLifecycleEnv("")

			Expect(env.feed(env.packageEvent("pre-install", "1.2.0"))).To(Succeed())
			Expect(env.feed(env.packageEvent("post-install", "1.2.0"))).To(Succeed())
			Expect(env.feed(`{"event":"loader-rebuild"}`)).To(Succeed())

			Expect(env.installed()).To(HaveLen(1))
		})
	})
})
