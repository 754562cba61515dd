// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package hook

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/catch-admin/plugin-hook/internal/observability"
	"github.com/catch-admin/plugin-hook/internal/registry"
	hookapi "github.com/catch-admin/plugin-hook/pkg/hook"
)

var tracer = otel.Tracer("plugin-hook/hook")

// Booter lazily brings up the host application environment.
type Booter interface {
	EnsureReady(ctx context.Context) bool
}

// Orchestrator maps host package-manager events onto the per-package
// lifecycle state machine. One Orchestrator lives for one package-manager
// invocation; the host calls HandleEvent synchronously, one event at a time.
type Orchestrator struct {
	resolver *Resolver
	host     Host
	booter   Booter
	store    registry.Store
	pending  *Pending
	metrics  *observability.Metrics
	batchID  ulid.ULID
}

// OrchestratorOption configures an Orchestrator during construction.
type OrchestratorOption func(*Orchestrator)

// WithMetrics enables hook execution metrics.
func WithMetrics(m *observability.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator wires the lifecycle-hook engine together.
func NewOrchestrator(resolver *Resolver, host Host, booter Booter, store registry.Store, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		host:     host,
		booter:   booter,
		store:    store,
		pending:  NewPending(),
		batchID:  ulid.Make(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BatchID identifies this package-manager invocation in diagnostics.
func (o *Orchestrator) BatchID() ulid.ULID {
	return o.batchID
}

// PendingEmpty reports whether any after-callback obligation is outstanding.
// Used at end of feed to detect a batch whose loader-rebuild never fired.
func (o *Orchestrator) PendingEmpty() bool {
	return o.pending.Empty()
}

// HandleEvent dispatches one host event. An error from a before-hook is the
// plugin vetoing its own operation and must abort that operation in the
// host; an error from the loader-rebuild flush aborts the invocation.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev *Event) (err error) {
	ctx, span := tracer.Start(ctx, "hook.HandleEvent")
	defer span.End()

	span.SetAttributes(attribute.String("event", ev.Name))
	if ev.Package != nil {
		span.SetAttributes(attribute.String("package", ev.Package.Name))
	}
	defer func() {
		if err != nil {
			span.SetStatus(otelcodes.Error, err.Error())
		}
	}()

	switch ev.Name {
	case EventPreInstall:
		return o.preInstall(ctx, ev.Package)
	case EventPostInstall:
		return o.postOperation(ctx, ev.Package, o.pending.RecordInstall)
	case EventPreUpdate:
		return o.preUpdate(ctx, ev.Package)
	case EventPostUpdate:
		return o.postOperation(ctx, ev.Package, o.pending.RecordUpdate)
	case EventPreUninstall:
		return o.preUninstall(ctx, ev.Package)
	case EventPostUninstall:
		// The uninstall obligation was recorded at pre-uninstall, while the
		// hook file still existed on disk.
		return nil
	case EventLoaderRebuild:
		return o.loaderRebuild(ctx)
	default:
		slog.Warn("unknown package-manager event, ignoring",
			"event", ev.Name,
			"batch", o.batchID.String())
		return nil
	}
}

// preInstall runs before_install synchronously. The runtime is NOT booted:
// at this point the generated loader does not cover the new package, so the
// hook runs with reduced capability. A hook error vetoes the installation.
func (o *Orchestrator) preInstall(ctx context.Context, pkg *Package) error {
	desc, ok := o.resolver.Resolve(pkg)
	if !ok {
		return nil
	}

	err := o.invoke(ctx, desc, hookapi.BeforeInstall, hookapi.Context{
		Name:    desc.Name,
		Version: desc.Version,
		Path:    desc.Path,
	})
	if err != nil {
		slog.Error("before_install hook rejected installation",
			"package", desc.Name,
			"version", desc.Version,
			"batch", o.batchID.String(),
			"hint", "remove the package declaration to skip this plugin",
			"error", err)
		return err
	}
	return nil
}

// preUpdate boots the runtime first so before_update sees the still-current
// plugin code with full capability, then runs the hook. A hook error vetoes
// the update.
func (o *Orchestrator) preUpdate(ctx context.Context, pkg *Package) error {
	desc, ok := o.resolver.Resolve(pkg)
	if !ok {
		return nil
	}

	o.boot(ctx)

	err := o.invoke(ctx, desc, hookapi.BeforeUpdate, hookapi.Context{
		Name:            desc.Name,
		Version:         desc.Version,
		PreviousVersion: pkg.PreviousVersion,
		Path:            desc.Path,
	})
	if err != nil {
		slog.Error("before_update hook rejected update",
			"package", desc.Name,
			"version", desc.Version,
			"batch", o.batchID.String(),
			"hint", "pin the package to its current version to skip this update",
			"error", err)
		return err
	}
	return nil
}

// preUninstall preloads the hook unit before the package files vanish, boots
// the runtime, runs before_uninstall, and records the pending uninstall.
// The entry is recorded whether or not a hook unit was present.
func (o *Orchestrator) preUninstall(ctx context.Context, pkg *Package) error {
	desc, ok := o.resolver.Resolve(pkg)
	if !ok {
		return nil
	}

	// Capture the hook code now: after the uninstall operation the file is
	// gone and any load attempt is a silent no-op.
	if _, err := o.host.Load(ctx, desc); err != nil {
		return err
	}

	o.boot(ctx)

	err := o.invoke(ctx, desc, hookapi.BeforeUninstall, hookapi.Context{
		Name: desc.Name,
		Path: desc.Path,
	})
	if err != nil {
		slog.Error("before_uninstall hook rejected removal",
			"package", desc.Name,
			"batch", o.batchID.String(),
			"error", err)
		return err
	}

	o.pending.RecordUninstall(entryFrom(desc))
	return nil
}

// postOperation records a pending entry for the batch. No callback runs
// here: the generated loader is stale and plugin code may not resolve until
// the loader-rebuild event.
func (o *Orchestrator) postOperation(_ context.Context, pkg *Package, record func(Entry)) error {
	desc, ok := o.resolver.Resolve(pkg)
	if !ok {
		return nil
	}

	e := entryFrom(desc)
	e.PreviousVersion = pkg.PreviousVersion
	record(e)

	slog.Debug("deferred after-callback until loader rebuild",
		"package", desc.Name,
		"batch", o.batchID.String())
	return nil
}

// loaderRebuild is the synchronization point: all deferred callbacks for the
// batch fire here, each followed by its registry write. A failing after-hook
// stops the remaining entries of its own mapping but the other mappings are
// independent package sets and are still attempted.
func (o *Orchestrator) loaderRebuild(ctx context.Context) error {
	if o.pending.Empty() {
		return nil
	}

	o.boot(ctx)

	var errs []error
	if err := o.flushInstalls(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := o.flushUpdates(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := o.flushUninstalls(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) flushInstalls(ctx context.Context) error {
	for _, e := range o.pending.DrainInstalls() {
		desc := e.Descriptor()
		err := o.invoke(ctx, desc, hookapi.AfterInstall, hookapi.Context{
			Name:    e.Name,
			Version: e.Version,
			Path:    e.Path,
		})
		if err != nil {
			slog.Error("after_install hook failed, abandoning remaining pending installs",
				"package", e.Name,
				"batch", o.batchID.String(),
				"error", err)
			return err
		}

		if err := o.store.Add(ctx, registry.Record{
			Name:    e.Name,
			Version: e.Version,
			Type:    e.Type,
			Path:    e.Path,
		}); err != nil {
			return err
		}
		o.countRegistryOp("add")
	}
	return nil
}

func (o *Orchestrator) flushUpdates(ctx context.Context) error {
	for _, e := range o.pending.DrainUpdates() {
		desc := e.Descriptor()
		err := o.invoke(ctx, desc, hookapi.AfterUpdate, hookapi.Context{
			Name:            e.Name,
			Version:         e.Version,
			PreviousVersion: e.PreviousVersion,
			Path:            e.Path,
		})
		if err != nil {
			slog.Error("after_update hook failed, abandoning remaining pending updates",
				"package", e.Name,
				"batch", o.batchID.String(),
				"error", err)
			return err
		}

		if err := o.store.Update(ctx, e.Name, e.Version); err != nil {
			return err
		}
		o.countRegistryOp("update")
	}
	return nil
}

func (o *Orchestrator) flushUninstalls(ctx context.Context) error {
	for _, e := range o.pending.DrainUninstalls() {
		desc := e.Descriptor()
		// The unit was preloaded at pre-uninstall; the files are gone by now
		// and Invoke falls back to the cached code.
		err := o.invoke(ctx, desc, hookapi.AfterUninstall, hookapi.Context{
			Name: e.Name,
			Path: e.Path,
		})
		if err != nil {
			slog.Error("after_uninstall hook failed, abandoning remaining pending uninstalls",
				"package", e.Name,
				"batch", o.batchID.String(),
				"error", err)
			return err
		}

		if err := o.store.Remove(ctx, e.Name); err != nil {
			return err
		}
		o.countRegistryOp("remove")
	}
	return nil
}

// boot brings up the host runtime, best effort. A not-ready runtime is a
// degraded state: hooks still run, in a reduced-capability environment.
func (o *Orchestrator) boot(ctx context.Context) {
	if o.booter.EnsureReady(ctx) {
		return
	}
	if o.metrics != nil {
		o.metrics.RuntimeDegraded.Inc()
	}
}

// invoke runs one lifecycle method and counts the outcome.
func (o *Orchestrator) invoke(ctx context.Context, desc *Descriptor, method hookapi.Method, hctx hookapi.Context) error {
	err := o.host.Invoke(ctx, desc, method, hctx)
	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.HookInvocations.WithLabelValues(string(method), status).Inc()
	}
	return err
}

func (o *Orchestrator) countRegistryOp(op string) {
	if o.metrics != nil {
		o.metrics.RegistryOps.WithLabelValues(op).Inc()
	}
}
