// Package main provides the shotfs command-line interface.
//
// shotfs crawls the web, captures a screenshot of every page it finds once
// per refresh period and serves the captures as a read-only FUSE
// filesystem. The binary supports multiple subcommands:
//   - run: Crawl and capture, optionally mounting the filesystem
//   - mount: Mount the capture filesystem
//   - setup, clear: Create or drop the catalog collections
//   - seed: Queue URLs from a file
//   - stats: Print capture throughput
//   - validate: Check stored captures against the catalog
package main
