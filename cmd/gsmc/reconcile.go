package main

import (
	"fmt"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	var (
		watch   bool
		regions []string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Converge local state against cloud truth once, or on a schedule with --watch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !watch {
				if err := a.rec.Reconcile(cmd.Context(), regions); err != nil {
					return fmt.Errorf("reconcile: %w", err)
				}
				fmt.Println("reconcile complete")
				return nil
			}

			return watchReconcile(cmd, a, regions)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running on the configured cron schedule instead of exiting after one pass")
	cmd.Flags().StringArrayVar(&regions, "region", nil, "extra region to include beyond local records and the shared active-regions set (repeatable)")
	return cmd
}

// watchReconcile runs Reconcile immediately, then on the cron schedule from
// config.Config.ReconcileCron, until the command's context is canceled
// (operator interrupt).
func watchReconcile(cmd *cobra.Command, a *app, regions []string) error {
	ctx := cmd.Context()

	runOnce := func() {
		if err := a.rec.Reconcile(ctx, regions); err != nil {
			a.log.Sugar().Warnw("reconcile: scheduled run failed", "err", err)
		}
	}
	runOnce()

	c := cron.New()
	if err := c.AddFunc(a.cfg.ReconcileCron, runOnce); err != nil {
		return fmt.Errorf("reconcile: invalid cron schedule %q: %w", a.cfg.ReconcileCron, err)
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return ctx.Err()
}
