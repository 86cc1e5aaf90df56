package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/internal/config"
	"github.com/dendrascience/geofs/internal/logger"
	"github.com/dendrascience/geofs/version"
)

// NewRootCmd creates and returns the root cobra command for the geofs CLI.
// It sets up all subcommands, command groups, and the configuration and
// logger shared by them.
func NewRootCmd() *cobra.Command {
	var (
		configPath string
		logCloser  io.Closer
	)

	rootCmd := &cobra.Command{
		Use:   "geofs",
		Short: "geofs - an append-only, content-addressed, view-versioned filesystem in a single file",
		Long: `geofs stores a whole filesystem in one volume file.

File contents are stored once per distinct SHA-256 digest, every change appends a
reference record, and named views let you look at the tree as it was when the view
was current. Nothing is ever overwritten: hiding a path creates a new view in which
the path is gone while every earlier view still sees it.

Use subcommands to perform different operations:
  - create, ls, cat, write, get, mkdir, ln, cp, mv, hide, find: work with files
  - mount: expose a volume through FUSE
  - views, view, snapshot, history, restore: travel between views
  - stats, validate, dump, import, seed, config: utilities`,
		Version:       version.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, closer, err := logger.Setup(cfg.Logging)
			if err != nil {
				return err
			}
			logCloser = closer

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(withRuntime(ctx, cfg, log))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file (default $XDG_CONFIG_HOME/geofs/config.yaml)")
	rootCmd.PersistentFlags().StringP("volume", "V", "", "Path to the volume file (default volume.path from the configuration)")

	groupFilesystem := "filesystem"
	groupViews := "views"
	groupUtilities := "utilities"

	rootCmd.AddGroup(&cobra.Group{
		ID:    groupFilesystem,
		Title: "Filesystem Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupViews,
		Title: "View Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupUtilities,
		Title: "Utility Commands",
	})

	for _, c := range []*cobra.Command{
		NewCreateCmd(),
		NewLsCmd(),
		NewCatCmd(),
		NewWriteCmd(),
		NewGetCmd(),
		NewMkdirCmd(),
		NewLnCmd(),
		NewCpCmd(),
		NewMvCmd(),
		NewHideCmd(),
		NewFindCmd(),
		NewMountCmd(),
	} {
		c.GroupID = groupFilesystem
		rootCmd.AddCommand(c)
	}

	for _, c := range []*cobra.Command{
		NewViewsCmd(),
		NewViewCmd(),
		NewSnapshotCmd(),
		NewHistoryCmd(),
		NewRestoreCmd(),
	} {
		c.GroupID = groupViews
		rootCmd.AddCommand(c)
	}

	for _, c := range []*cobra.Command{
		NewStatsCmd(),
		NewValidateCmd(),
		NewDumpCmd(),
		NewImportCmd(),
		NewSeedCmd(),
		NewConfigCmd(),
		NewVersionCmd(),
	} {
		c.GroupID = groupUtilities
		rootCmd.AddCommand(c)
	}

	return rootCmd
}
