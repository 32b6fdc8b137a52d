// Package http carries RPC requests as HTTP POST bodies.
//
// The server routes POST /<shard id> to the registered handler and answers
// with the serialized response as application/octet-stream. The client sends
// one request per call, picks endpoints round robin and retries failed
// requests on the next endpoint.
//
// Every request is a full HTTP round trip, so this transport is slower than
// tcp or unix. It is meant for setups where only HTTP passes, such as a
// reverse proxy in front of the server, and for poking at a server with curl
// together with the json serializer.
package http
