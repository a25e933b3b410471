// Command gsmc is the control-plane CLI: one subcommand per Provisioner
// operation, plus serve (the HTTP API) and reconcile (state convergence),
// wired the way mattermost-mattermost-cloud's cmd/cloud builds its
// collaborators directly inside each command's handler rather than through
// a shared framework.
package main

import (
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gsmc-io/gsmc/internal/cliutil"
	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/config"
	"github.com/gsmc-io/gsmc/internal/provisioner"
	"github.com/gsmc-io/gsmc/internal/reconciler"
	"github.com/gsmc-io/gsmc/internal/registry"
	"github.com/gsmc-io/gsmc/internal/sharedkey"
	"github.com/gsmc-io/gsmc/internal/store"
)

// app bundles every long-lived collaborator a command handler needs. It is
// built fresh per invocation rather than shared across commands, since each
// gsmc process runs exactly one operation and then exits.
type app struct {
	cfg  *config.Config
	log  *zap.Logger
	prov *provisioner.Provisioner
	rec  *reconciler.Reconciler
}

func (a *app) Close() {
	_ = a.log.Sync()
}

// buildApp resolves configuration and wires the real production
// collaborators: the EC2 gateway, the SSM-backed shared-key manager, the
// on-disk store, the native+catalog game registry, and the reconciler —
// exactly what SPEC_FULL.md's control plane needs for any mutating or
// read-only operation.
func buildApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(globalViper)
	if err != nil {
		return nil, newUsageError("invalid configuration: %v", err)
	}
	if cfg.StateDir == "" {
		dir, err := store.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve state directory: %w", err)
		}
		cfg.StateDir = dir
	}

	log, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()

	st, err := store.Open(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open local state store: %w", err)
	}

	gateway, err := cloud.NewEC2Gateway(ctx)
	if err != nil {
		return nil, fmt.Errorf("build cloud gateway: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for parameter store: %w", err)
	}
	paramStore := sharedkey.NewSSMParamStore(ssm.NewFromConfig(awsCfg))
	keys := sharedkey.NewManager(paramStore, gateway, st.KeyPath())

	reg := registry.New()
	registry.RegisterNative(reg)
	if cfg.CatalogPath != "" {
		if err := registry.RegisterCatalog(reg, cfg.CatalogPath); err != nil {
			return nil, fmt.Errorf("load catalog file %s: %w", cfg.CatalogPath, err)
		}
	}

	rec := reconciler.New(st, gateway, keys, log)

	priv, err := keys.EnsureKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure shared SSH key: %w", err)
	}

	debug, _ := cmd.Flags().GetBool("debug")
	var debugFn func(cmd string, exitCode int)
	if debug {
		debugFn = cliutil.DebugPrinter()
	}
	dialer := provisioner.NewSSHDialer(priv, debugFn)

	prov := provisioner.New(st, gateway, keys, reg, rec, dialer, cfg, log)
	prov.OnStatus(cliutil.StatusPrinter())
	if debug {
		prov.OnDebug(debugFn)
	}

	return &app{cfg: cfg, log: log, prov: prov, rec: rec}, nil
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	var zcfg zap.Config
	if debug {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log, nil
}

// usageError marks a failure in argument/flag handling, mapped to exit
// code 2 in main.go — spec.md §6's CLI exit-code contract.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func newUsageError(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}
