package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCommandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-command <name-or-id> <command...>",
		Short: "Send an admin/RCON command to a running server's game process",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			out, err := a.prov.SendCommand(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "logs <name-or-id>",
		Short: "Print the game server container's recent log output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			out, err := a.prov.Logs(cmd.Context(), args[0], tail)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 200, "number of trailing log lines to fetch")
	return cmd
}
