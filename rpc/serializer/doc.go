// Package serializer turns RPC messages into bytes and back. Client and server
// must use the same format; it is selected by name with New.
//
// Formats:
//
//   - binary: hand-written layout. A 16 bit flag word marks the fields that are
//     set and only those are written. Fastest and smallest, the default.
//
//   - cbor: RFC 8949 encoding through fxamacker/cbor. Compact and readable by
//     non-Go peers.
//
//   - json: readable on the wire, useful with the http transport and curl.
//
//   - gob: Go's own format. Kept for comparison; it is the slowest and, like
//     json, does not keep nil and empty byte slices apart.
//
// The formats differ in how they treat empty values. Callers that need to tell
// "missing" from "empty" use the Ok and Found fields of the message instead of
// the nil-ness of a value.
//
// All serializers are stateless and safe for concurrent use.
//
// Usage:
//
//	s, err := serializer.New(common.SerializerBinary)
//	data, err := s.Serialize(*common.NewGetRequest(key))
//	var resp common.Message
//	err = s.Deserialize(answer, &resp)
package serializer
