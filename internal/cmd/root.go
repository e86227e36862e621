package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dendrascience/shotfs/version"
)

const (
	groupCapture    = "capture"
	groupFilesystem = "filesystem"
	groupUtilities  = "utilities"
)

// NewRootCmd creates and returns the root cobra command for the shotfs CLI.
// It sets up all subcommands, command groups and the flags shared by them.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "shotfs",
		Short: "shotfs - crawl the web, screenshot it and browse the captures as files",
		Long: `shotfs crawls the web, takes a screenshot of every page it finds once per
refresh period and exposes the captures as a read-only FUSE filesystem laid
out as /{domain}/{period}/{path}, with a "latest" alias per domain.

Use subcommands to perform different operations:
  - run: Start crawlers and photographers, optionally mounting the filesystem
  - mount: Mount the filesystem on its own
  - setup, clear: Create or drop the catalog collections
  - seed: Queue URLs from a file
  - stats: Print capture throughput
  - validate: Check the data directory against the catalog`,
		Version:       version.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	rootCmd.AddGroup(
		&cobra.Group{ID: groupCapture, Title: "Capture Operations"},
		&cobra.Group{ID: groupFilesystem, Title: "Filesystem Operations"},
		&cobra.Group{ID: groupUtilities, Title: "Utility Commands"},
	)

	runCmd := NewRunCmd(opts)
	mountCmd := NewMountCmd(opts)
	setupCmd := NewSetupCmd(opts)
	clearCmd := NewClearCmd(opts)
	seedCmd := NewSeedCmd(opts)
	statsCmd := NewStatsCmd(opts)
	validateCmd := NewValidateCmd(opts)

	runCmd.GroupID = groupCapture
	mountCmd.GroupID = groupFilesystem
	setupCmd.GroupID = groupUtilities
	clearCmd.GroupID = groupUtilities
	seedCmd.GroupID = groupUtilities
	statsCmd.GroupID = groupUtilities
	validateCmd.GroupID = groupUtilities

	rootCmd.AddCommand(runCmd, mountCmd, setupCmd, clearCmd, seedCmd, statsCmd, validateCmd)

	return rootCmd
}
