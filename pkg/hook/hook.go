// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

// Package hook defines the contract between the lifecycle-hook orchestrator
// and plugin authors.
//
// A plugin package declares a hook identifier in its package metadata, a
// dotted name such as "acme.widgets.hook". The identifier is resolved to a
// Lua source file through the package's source-root map and loaded with the
// host application's native code-loading mechanism. The loaded unit may
// define any subset of the lifecycle functions listed below; functions it
// does not define are simply never called.
//
// Every lifecycle function receives a single context table. Install and
// update calls carry name, version, and path, and update calls additionally
// carry previous_version; uninstall calls run before or after the package
// files are removed and carry only name and path. A
// lifecycle function signals rejection by raising an error; a before-phase
// error aborts that package's operation.
package hook

// Method names a plugin hook unit may define.
type Method string

// Lifecycle methods, in the order the host package manager drives them.
const (
	BeforeInstall   Method = "before_install"
	AfterInstall    Method = "after_install"
	BeforeUpdate    Method = "before_update"
	AfterUpdate     Method = "after_update"
	BeforeUninstall Method = "before_uninstall"
	AfterUninstall  Method = "after_uninstall"
)

// Methods lists every lifecycle method the orchestrator will probe for.
func Methods() []Method {
	return []Method{
		BeforeInstall, AfterInstall,
		BeforeUpdate, AfterUpdate,
		BeforeUninstall, AfterUninstall,
	}
}

// Context is the payload passed to a lifecycle method.
//
// Version is empty for uninstall-phase calls: those run against a package
// whose files are being (or have been) removed, so only identity and the
// on-disk path are meaningful. PreviousVersion is set only on update-phase
// calls, where Version is the version being moved to.
type Context struct {
	Name            string
	Version         string
	PreviousVersion string
	Path            string
}
