package main

import (
	"github.com/spf13/cobra"

	"portal-sync/internal/sync"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the portalsync command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "portalsync",
		Short: "Keep the portal database in step with the LMS",
		Long: `portalsync reconciles portal courses, users, enrollments and completions
with the LMS web services, and pushes portal-originated users and
enrollments back to the LMS.

Configuration comes from environment variables, optionally layered over a
YAML file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(NewSyncCommand(opts, sync.KindInitial))
	cmd.AddCommand(NewSyncCommand(opts, sync.KindPeriodic))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}
