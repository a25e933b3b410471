package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gsmc-io/gsmc/internal/cliutil"
	"github.com/gsmc-io/gsmc/internal/model"
)

func newDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <name-or-id>",
		Short: "Terminate a server's cloud instance and delete its local record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.prov.Destroy(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("destroyed %s\n", args[0])
			return nil
		},
	}
}

func newDestroyAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy-all",
		Short: "Reconcile, then destroy every known server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			errs := a.prov.DestroyAll(cmd.Context())
			for _, e := range errs {
				fmt.Println("error:", e)
			}
			if len(errs) > 0 {
				return fmt.Errorf("destroy-all: %d server(s) failed to destroy", len(errs))
			}
			fmt.Println("all servers destroyed")
			return nil
		},
	}
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <name-or-id>",
		Short: "Stop the container and the cloud instance, keeping the disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			server, err := a.prov.Pause(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cliutil.PrintServers([]model.Server{server})
			return nil
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <name-or-id>",
		Short: "Start the cloud instance (and container, unless it was stopped) back up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			server, err := a.prov.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cliutil.PrintServers([]model.Server{server})
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name-or-id>",
		Short: "Stop the game server container, keeping the cloud instance running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			server, err := a.prov.StopContainer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cliutil.PrintServers([]model.Server{server})
			return nil
		},
	}
}

func newPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <name-or-id>",
		Short: "Allocate and associate a static elastic IP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			server, err := a.prov.PinIP(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cliutil.PrintServers([]model.Server{server})
			return nil
		},
	}
}

func newUnpinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpin <name-or-id>",
		Short: "Release the static elastic IP, reverting to a dynamic address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			server, err := a.prov.UnpinIP(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cliutil.PrintServers([]model.Server{server})
			return nil
		},
	}
}
