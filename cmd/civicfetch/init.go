package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pevans/civicfetch/config"
)

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a commented starter config file to ~/.civicfetch/config.yaml, or to
the path given with --config. An existing file is left alone unless --force
is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				p, err := config.Path()
				if err != nil {
					return err
				}
				path = p
			}

			created, err := config.WriteDefault(path, force)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s (already exists)\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
