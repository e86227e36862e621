// Package cmd provides the command-line interface implementation for shotfs.
//
// Each subcommand lives in its own file with a constructor returning a
// *cobra.Command. The root command wires them into groups and owns the
// persistent flags, which override the YAML config file and the
// environment when given explicitly. Fang renders help and errors.
//
// The package is organized into the following commands:
//   - run: crawler and photographer pools, plus an optional mount
//   - mount: the read-only capture filesystem on its own
//   - setup, clear: catalog collection management
//   - seed: queue URLs from a file
//   - stats: capture throughput
//   - validate: data directory against catalog consistency
package cmd
