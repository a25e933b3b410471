package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gsmc-io/gsmc/internal/cliutil"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/internal/provisioner"
)

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <name-or-id>",
		Short: "Take a disk snapshot of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			snap, err := a.prov.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cliutil.PrintSnapshots([]model.Snapshot{snap})
			return nil
		},
	}
}

func newSnapshotsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List every known snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			snaps, err := a.prov.ListSnapshots()
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(snaps)
			}
			cliutil.PrintSnapshots(snaps)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON instead of a table")
	return cmd
}

func newDeleteSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-snapshot <id>",
		Short: "Delete a snapshot record and its underlying cloud resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.prov.DeleteSnapshot(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted snapshot %s\n", args[0])
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	var (
		game         string
		region       string
		instanceType string
		name         string
		pinIP        bool
	)
	cmd := &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Launch a new server restored from a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if game == "" {
				return newUsageError("--game is required: it identifies which registered game descriptor to launch the restored server under")
			}
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			server, err := a.prov.Restore(cmd.Context(), args[0], provisioner.LaunchParams{
				Game:         game,
				Region:       region,
				InstanceType: instanceType,
				Name:         name,
				PinIP:        pinIP,
			})
			if err != nil {
				return err
			}
			cliutil.PrintServers([]model.Server{server})
			return nil
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "registered game this snapshot belongs to (required)")
	cmd.Flags().StringVar(&region, "region", "", "cloud region (defaults to the snapshot's own region, then the configured default region)")
	cmd.Flags().StringVar(&instanceType, "instance-type", "", "cloud instance type (defaults to the game's recommended type)")
	cmd.Flags().StringVar(&name, "name", "", "server name (defaults to <game>-<id>)")
	cmd.Flags().BoolVar(&pinIP, "pin-ip", false, "allocate and associate an elastic IP on restore")
	return cmd
}
