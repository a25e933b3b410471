package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gsmc-io/gsmc/internal/cliutil"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/internal/provisioner"
)

func newLaunchCmd() *cobra.Command {
	var (
		region       string
		instanceType string
		name         string
		configFile   string
		configFlags  []string
		uploadFlags  []string
		fromSnapshot string
		pinIP        bool
	)

	cmd := &cobra.Command{
		Use:   "launch <game>",
		Short: "Launch a new game server, or restore one from a snapshot with --from-snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			overrides, err := parseKeyValueFlags(configFlags)
			if err != nil {
				return newUsageError("invalid --config value: %v", err)
			}
			uploads, err := parseUploadFlags(uploadFlags)
			if err != nil {
				return newUsageError("invalid --upload value: %v", err)
			}

			server, err := a.prov.Launch(cmd.Context(), provisioner.LaunchParams{
				Game:            args[0],
				Region:          region,
				InstanceType:    instanceType,
				Name:            name,
				ConfigOverrides: overrides,
				ConfigFile:      configFile,
				Uploads:         uploads,
				FromSnapshot:    fromSnapshot,
				PinIP:           pinIP,
			})
			if err != nil {
				return err
			}
			cliutil.PrintServers([]model.Server{server})
			return nil
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "cloud region (defaults to the configured default region)")
	cmd.Flags().StringVar(&instanceType, "instance-type", "", "cloud instance type (defaults to the game's recommended type)")
	cmd.Flags().StringVar(&name, "name", "", "server name (defaults to <game>-<id>)")
	cmd.Flags().StringVar(&configFile, "config-file", "", "path to a key=value config file merged before --config overrides")
	cmd.Flags().StringArrayVar(&configFlags, "config", nil, "config override, key=value (repeatable)")
	cmd.Flags().StringArrayVar(&uploadFlags, "upload", nil, "local:container file upload (repeatable)")
	cmd.Flags().StringVar(&fromSnapshot, "from-snapshot", "", "restore from this snapshot id instead of a fresh image")
	cmd.Flags().BoolVar(&pinIP, "pin-ip", false, "allocate and associate an elastic IP on launch")
	return cmd
}

func parseKeyValueFlags(flags []string) (map[string]string, error) {
	out := map[string]string{}
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", f)
		}
		out[k] = v
	}
	return out, nil
}

func parseUploadFlags(flags []string) ([]provisioner.Upload, error) {
	var out []provisioner.Upload
	for _, f := range flags {
		local, container, ok := strings.Cut(f, ":")
		if !ok {
			return nil, fmt.Errorf("expected local:container, got %q", f)
		}
		out = append(out, provisioner.Upload{LocalPath: local, ContainerPath: container})
	}
	return out, nil
}
