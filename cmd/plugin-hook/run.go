// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/catch-admin/plugin-hook/internal/config"
	"github.com/catch-admin/plugin-hook/internal/hook"
	hooklua "github.com/catch-admin/plugin-hook/internal/hook/lua"
	"github.com/catch-admin/plugin-hook/internal/logging"
	"github.com/catch-admin/plugin-hook/internal/observability"
	"github.com/catch-admin/plugin-hook/internal/registry"
	"github.com/catch-admin/plugin-hook/internal/runtime"
	"github.com/catch-admin/plugin-hook/pkg/errutil"
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	var eventsPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consume a package-manager lifecycle event feed",
		Long: `Run reads newline-delimited JSON lifecycle events from stdin (or a
file), executes each eligible plugin's hooks, and records installed plugins
in the registry. The feed ends at EOF; a feed that never emits a
loader-rebuild event drops its deferred after-callbacks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			logging.SetDefault("plugin-hook", version, cfg.Log.Format)

			in := cmd.InOrStdin()
			if eventsPath != "" {
				f, err := os.Open(eventsPath)
				if err != nil {
					return oops.In("cli").With("path", eventsPath).Hint("check the --events path").Wrap(err)
				}
				defer f.Close()
				in = f
			}

			return runFeed(cmd.Context(), cfg, in)
		},
	}

	registerConfigFlags(cmd.Flags())
	cmd.Flags().StringVar(&eventsPath, "events", "", "read events from a file instead of stdin")

	return cmd
}

// registerConfigFlags declares flags mirroring the config keys. Dotted names
// let the flag set overlay the config file directly.
func registerConfigFlags(fs *pflag.FlagSet) {
	def := config.Default()
	fs.String("log.format", def.Log.Format, "log format (json or text)")
	fs.String("hooks.sentinel", def.Hooks.Sentinel, "package type that marks a package as hook-bearing")
	fs.String("hooks.extension", def.Hooks.Extension, "hook source file extension")
	fs.StringSlice("hooks.ignore", def.Hooks.Ignore, "glob patterns of package names exempt from hooks")
	fs.String("runtime.loader", def.Runtime.Loader, "generated dependency loader script")
	fs.String("runtime.boot", def.Runtime.Boot, "host application bootstrap script")
	fs.String("registry.path", def.Registry.Path, "installed-plugin registry file")
	fs.String("metrics.addr", def.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
}

// runFeed wires the orchestrator together and drains the event feed. Events
// are handled strictly in feed order; a before-hook veto or a failed flush
// aborts the invocation so the host package manager sees the failure.
func runFeed(ctx context.Context, cfg config.Config, in io.Reader) error {
	resolver, err := hook.NewResolver(cfg.Hooks.Sentinel, hook.WithIgnorePatterns(cfg.Hooks.Ignore))
	if err != nil {
		return err
	}

	boot := runtime.NewBootstrapper(cfg.Runtime.Loader, cfg.Runtime.Boot)
	defer boot.Close()

	host := hooklua.NewHost(
		hooklua.WithRuntime(boot),
		hooklua.WithExtension(cfg.Hooks.Extension),
	)
	defer func() {
		if cerr := host.Close(context.WithoutCancel(ctx)); cerr != nil {
			errutil.LogWarn(slog.Default(), "hook host close failed", cerr)
		}
	}()

	store := registry.NewFileStore(cfg.Registry.Path)

	var opts []hook.OrchestratorOption
	if cfg.Metrics.Addr != "" {
		server := observability.NewServer(cfg.Metrics.Addr, boot.Ready)
		if _, err := server.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if serr := server.Stop(stopCtx); serr != nil {
				errutil.LogWarn(slog.Default(), "observability server stop failed", serr)
			}
		}()
		opts = append(opts, hook.WithMetrics(server.Metrics()))
	}

	orch := hook.NewOrchestrator(resolver, host, boot, store, opts...)
	slog.Info("consuming lifecycle event feed", "batch", orch.BatchID().String())

	if err := drainEvents(ctx, orch, in); err != nil {
		return err
	}

	if !orch.PendingEmpty() {
		slog.Warn("feed ended without a loader-rebuild event, deferred after-callbacks were dropped",
			"batch", orch.BatchID().String())
	}
	return nil
}

// drainEvents feeds each NDJSON line to the orchestrator. Malformed lines
// are logged and skipped; the host manager keeps going, so the hook engine
// does too. Hook errors are fatal to the invocation.
func drainEvents(ctx context.Context, orch *hook.Orchestrator, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := hook.ValidateSchema([]byte(line)); err != nil {
			slog.Warn("skipping event that failed schema validation",
				"detail", hook.FormatSchemaError(err))
			continue
		}

		ev, err := hook.ParseEvent([]byte(line))
		if err != nil {
			errutil.LogWarn(slog.Default(), "skipping malformed event", err)
			continue
		}

		if err := orch.HandleEvent(ctx, ev); err != nil {
			errutil.LogError(slog.Default(), "lifecycle hook failed, aborting", err)
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return oops.In("cli").Hint("the event feed could not be read").Wrap(err)
	}
	return nil
}
