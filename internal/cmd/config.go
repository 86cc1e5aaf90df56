package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/internal/config"
)

// NewConfigCmd creates and returns the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := config.WriteDefault(path, force)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Wrote configuration to %s\n", written)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Where to write the file (default $XDG_CONFIG_HOME/geofs/config.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateYAML(configFrom(cmd))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
