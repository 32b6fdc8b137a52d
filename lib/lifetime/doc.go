// Package lifetime releases stores and event stores when the process ends.
// The store factory registers every database it opens; Shutdown force-flushes
// and closes them in reverse order and combines the errors with multierr.
// ShutdownOnSignal hooks Shutdown to SIGINT and SIGTERM for long running commands.
package lifetime
