// Package base implements the framed stream transport shared by the tcp and
// unix transports. The protocol specific parts (dialing, listening, socket
// options) are injected as IClientConnector and IServerConnector.
//
// Wire format: every message is one frame of shard id, request id, payload
// length and payload (see util.go). The request id lets the client keep many
// requests in flight on one connection and match the answers, which may arrive
// out of order because the server handles the requests of a connection with a
// bounded pool of workers.
//
// Client:
//
//   - ConnectionsPerEndpoint connections are opened per endpoint and used round
//     robin.
//   - A request is retried up to RetryCount times with exponential backoff;
//     every attempt gets a new request id, so a late answer to a timed out
//     attempt is dropped.
//   - When a connection breaks, its waiting requests fail at once and a reader
//     goroutine re-establishes it in the background.
//
// Server:
//
//   - One goroutine reads the frames of a connection, at most WorkersPerConn
//     goroutines handle them. Read buffers come from a sync.Pool.
//   - Close stops the listener, closes all connections and waits for the
//     connection goroutines.
//
// Idle connections never time out. The timeout of the config applies to
// writes and to the wait for a response.
package base
