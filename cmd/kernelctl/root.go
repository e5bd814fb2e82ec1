package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentos-dev/agentkernel/pkg/artifacts"
	"github.com/agentos-dev/agentkernel/pkg/config"
	"github.com/agentos-dev/agentkernel/pkg/observability"
	"github.com/agentos-dev/agentkernel/pkg/store"
)

// version is set at build time with -ldflags.
var version = "0.1.0-dev"

// usageError marks argument and flag mistakes.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func isUsageError(err error) bool {
	var ue usageError
	if errors.As(err, &ue) {
		return true
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "arg(s)") ||
		strings.HasPrefix(msg, "required flag")
}

// app holds the resources shared by subcommands. Everything is opened
// lazily so commands that need nothing external stay cheap.
type app struct {
	stdout io.Writer
	stderr io.Writer

	dataDir string
	jsonOut bool

	cfg    *config.Config
	logger *slog.Logger

	artifactStore *artifacts.Store
	stateStore    store.StateStore
	telemetry     *observability.Provider
}

func newRootCommand(stdout, stderr io.Writer) (*cobra.Command, *app) {
	a := &app{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "kernelctl",
		Short:         "kernelctl - agent execution kernel",
		Long:          "kernelctl gates agent actions through policy, stores artifacts by content hash,\nrecords run events and checkpoints the aggregated state.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Override KERNEL_DATA_DIR")
	cmd.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Print machine-readable JSON")

	cmd.AddCommand(
		newPolicyCommand(a),
		newArtifactCommand(a),
		newRunCommand(a),
		newReplayCommand(a),
		newSnapshotCommand(a),
		newVersionCommand(a),
	)
	return cmd, a
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.OverrideDataDir(a.dataDir)
	}
	a.cfg = cfg

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	a.logger = slog.New(slog.NewJSONHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) artifacts(ctx context.Context) (*artifacts.Store, error) {
	if a.artifactStore != nil {
		return a.artifactStore, nil
	}
	backend, err := artifacts.NewBackendFromConfig(ctx, a.cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("artifact backend: %w", err)
	}
	a.artifactStore = artifacts.NewStore(backend, artifacts.WithLogger(a.logger))
	return a.artifactStore, nil
}

func (a *app) state(ctx context.Context) (store.StateStore, error) {
	if a.stateStore != nil {
		return a.stateStore, nil
	}
	st, err := store.NewFromConfig(ctx, a.cfg.State)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	a.stateStore = st
	return st, nil
}

func (a *app) observability(ctx context.Context) (*observability.KernelMetrics, error) {
	if a.telemetry == nil {
		p, err := observability.New(ctx, observability.ConfigFrom(a.cfg.Telemetry, version))
		if err != nil {
			return nil, err
		}
		a.telemetry = p
	}
	return observability.NewKernelMetrics(a.telemetry.Meter())
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.stateStore != nil {
		if err := a.stateStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
