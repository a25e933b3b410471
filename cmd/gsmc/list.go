package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gsmc-io/gsmc/internal/cliutil"
)

func newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every known server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			servers, err := a.prov.ListServers()
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(servers)
			}
			cliutil.PrintServers(servers)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON instead of a table")
	return cmd
}

func newGetCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <name-or-id>",
		Short: "Show one server's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			server, err := a.prov.GetServer(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(server)
			}
			fmt.Printf("id:         %s\n", server.ID)
			fmt.Printf("name:       %s\n", server.Name)
			fmt.Printf("game:       %s\n", server.Game)
			fmt.Printf("status:     %s\n", server.Status)
			fmt.Printf("region:     %s\n", server.Region)
			fmt.Printf("public ip:  %s\n", server.PublicIP)
			if server.HasPinnedIP() {
				fmt.Printf("pinned ip:  %s\n", server.EIPPublicIP)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON instead of a plain summary")
	return cmd
}
