// Package cmd implements the command-line interface of evkv. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the evkv server
//   - kv: Commands for key-value operations on a shard of a server (get, set, scan, etc.)
//   - events: Commands for the event stores (append, get, delete, flush, bench)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See evkv --help for a list of all commands.
package cmd
