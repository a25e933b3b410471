package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gsmc-io/gsmc/internal/config"
)

// globalViper backs every command's configuration: flags are bound once
// here, against the root command's persistent flag set, and command
// handlers read resolved values out of the very same instance.
var globalViper = viper.New()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gsmc",
		Short:         "Multi-tenant game server control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.BindFlags(root.PersistentFlags(), globalViper)
	root.PersistentFlags().Bool("debug", false, "enable debug logging and verbose SSH command tracing")
	_ = globalViper.BindPFlag("debug", root.PersistentFlags().Lookup("debug"))

	root.AddCommand(
		newLaunchCmd(),
		newListCmd(),
		newGetCmd(),
		newDestroyCmd(),
		newDestroyAllCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newStopCmd(),
		newPinCmd(),
		newUnpinCmd(),
		newSnapshotCmd(),
		newSnapshotsCmd(),
		newDeleteSnapshotCmd(),
		newRestoreCmd(),
		newSendCommandCmd(),
		newLogsCmd(),
		newServeCmd(),
		newReconcileCmd(),
	)
	return root
}
