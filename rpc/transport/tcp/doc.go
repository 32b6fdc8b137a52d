// Package tcp implements the TCP socket transport of the RPC layer. It provides
// implementations of the base package's connector interfaces, so framing,
// connection pooling, buffer reuse and request routing all come from base.
//
// Both sides apply the common.SocketConfig of their configuration to every
// connection (TCP_NODELAY, keep-alive, linger and socket buffer sizes).
//
// The default server buffer size is 512 KB. Frames larger than the buffer are
// read into a temporary allocation.
package tcp
