package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type" cbor:"1,keyasint"`

	// General fields
	Key    []byte   `json:"key,omitempty" cbor:"2,keyasint,omitempty"`    // Used for: Set, Swap, SetIfAbsent, Delete, Get, Has; the prefix of DeletePrefix, Scan, Count
	Value  []byte   `json:"value,omitempty" cbor:"3,keyasint,omitempty"`  // Used for: Set, Swap, SetIfAbsent (request), Get, Swap, SetIfAbsent (response)
	Keys   [][]byte `json:"keys,omitempty" cbor:"4,keyasint,omitempty"`   // Used for: SetMany, DeleteMany, GetMany (request), Scan (response)
	Values [][]byte `json:"values,omitempty" cbor:"5,keyasint,omitempty"` // Used for: SetMany (request), GetMany, Scan (response)

	// Response only fields
	Found []bool  `json:"found,omitempty" cbor:"6,keyasint,omitempty"` // Used for: GetMany responses, one flag per key
	Count int64   `json:"count,omitempty" cbor:"7,keyasint,omitempty"` // Used for: Count, Features responses
	Ok    bool    `json:"ok,omitempty" cbor:"8,keyasint,omitempty"`    // Used for: Get, Swap, SetIfAbsent, Has responses
	Code  RetCode `json:"code,omitempty" cbor:"9,keyasint,omitempty"`  // RetCSuccess unless Err is set
	Err   string  `json:"err,omitempty" cbor:"10,keyasint,omitempty"`  // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty" cbor:"11,keyasint,omitempty"` // Used for: Info responses (json encoded db.DatabaseInfo)
}

// ToError returns the error carried by a response or nil
func (m *Message) ToError() error {
	if m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	code := m.Code
	if code == RetCSuccess {
		code = RetCInternalError
	}
	return NewError(code, m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSetRequest creates a new Set request
func NewSetRequest(key, value []byte) *Message {
	return &Message{MsgType: MsgTSet, Key: key, Value: value}
}

// NewSetManyRequest creates a new SetMany request
func NewSetManyRequest(keys, values [][]byte) *Message {
	return &Message{MsgType: MsgTSetMany, Keys: keys, Values: values}
}

// NewSwapRequest creates a new Swap request
func NewSwapRequest(key, value []byte) *Message {
	return &Message{MsgType: MsgTSwap, Key: key, Value: value}
}

// NewSetIfAbsentRequest creates a new SetIfAbsent request
func NewSetIfAbsentRequest(key, value []byte) *Message {
	return &Message{MsgType: MsgTSetIfAbsent, Key: key, Value: value}
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key []byte) *Message {
	return &Message{MsgType: MsgTDelete, Key: key}
}

// NewDeleteManyRequest creates a new DeleteMany request
func NewDeleteManyRequest(keys [][]byte) *Message {
	return &Message{MsgType: MsgTDeleteMany, Keys: keys}
}

// NewDeletePrefixRequest creates a new DeletePrefix request
func NewDeletePrefixRequest(prefix []byte) *Message {
	return &Message{MsgType: MsgTDeletePrefix, Key: prefix}
}

// NewGetRequest creates a new Get request
func NewGetRequest(key []byte) *Message {
	return &Message{MsgType: MsgTGet, Key: key}
}

// NewGetManyRequest creates a new GetMany request
func NewGetManyRequest(keys [][]byte) *Message {
	return &Message{MsgType: MsgTGetMany, Keys: keys}
}

// NewHasRequest creates a new Has request
func NewHasRequest(key []byte) *Message {
	return &Message{MsgType: MsgTHas, Key: key}
}

// NewScanRequest creates a new Scan request
func NewScanRequest(prefix []byte) *Message {
	return &Message{MsgType: MsgTScan, Key: prefix}
}

// NewCountRequest creates a new Count request
func NewCountRequest(prefix []byte) *Message {
	return &Message{MsgType: MsgTCount, Key: prefix}
}

// NewFlushRequest creates a new Flush request, or ForceFlush if force is set
func NewFlushRequest(force bool) *Message {
	if force {
		return &Message{MsgType: MsgTForceFlush}
	}
	return &Message{MsgType: MsgTFlush}
}

// NewFeaturesRequest creates a new Features request
func NewFeaturesRequest() *Message {
	return &Message{MsgType: MsgTFeatures}
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTInfo}
}

// NewResponse creates a response of type t carrying err (if any)
func NewResponse(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	if err != nil {
		msg.Code = CodeOf(err)
		msg.Err = err.Error()
	}
	return msg
}

// NewValueResponse creates a response for the operations returning one value (Get, Swap, SetIfAbsent)
func NewValueResponse(t MessageType, value []byte, ok bool, err error) *Message {
	msg := NewResponse(t, err)
	if err == nil {
		msg.Value = value
		msg.Ok = ok
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code RetCode, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    code,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:      "success",
	MsgTError:        "error",
	MsgTSet:          "set",
	MsgTSetMany:      "setMany",
	MsgTSwap:         "swap",
	MsgTSetIfAbsent:  "setIfAbsent",
	MsgTDelete:       "delete",
	MsgTDeleteMany:   "deleteMany",
	MsgTDeletePrefix: "deletePrefix",
	MsgTGet:          "get",
	MsgTGetMany:      "getMany",
	MsgTHas:          "has",
	MsgTScan:         "scan",
	MsgTCount:        "count",
	MsgTFlush:        "flush",
	MsgTForceFlush:   "forceFlush",
	MsgTFeatures:     "features",
	MsgTInfo:         "info",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for mt, name := range messageTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Write operations

	MsgTSet          // Set a key-value pair
	MsgTSetMany      // Set many key-value pairs
	MsgTSwap         // Set a key-value pair and return the old value
	MsgTSetIfAbsent  // Set a key-value pair if the key is missing
	MsgTDelete       // Delete a key-value pair
	MsgTDeleteMany   // Delete many key-value pairs
	MsgTDeletePrefix // Delete all pairs with a key prefix

	// Query operations

	MsgTGet      // Get a value by key
	MsgTGetMany  // Get many values by key
	MsgTHas      // Check if a key exists
	MsgTScan     // List all pairs with a key prefix
	MsgTCount    // Count all pairs with a key prefix
	MsgTFeatures // Query the feature flags of the engine
	MsgTInfo     // Query the engine info

	// Persistence operations

	MsgTFlush      // Best effort flush
	MsgTForceFlush // Durable flush
)
