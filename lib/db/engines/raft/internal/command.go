package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible write operations for the state machine.
type CommandType uint8

const (
	CommandTSet          CommandType = iota // Insert or update one entry.
	CommandTSetMany                         // Insert or update all entries.
	CommandTSwap                            // Set and return the previous value.
	CommandTSetIfAbsent                     // Insert if missing, otherwise return the current value.
	CommandTDelete                          // Delete one entry.
	CommandTDeleteMany                      // Delete all listed keys.
	CommandTDeletePrefix                    // Delete every key with the prefix.
	CommandTForceFlush                      // Make the state durable on every replica.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTSet:
		return "Set"
	case CommandTSetMany:
		return "SetMany"
	case CommandTSwap:
		return "Swap"
	case CommandTSetIfAbsent:
		return "SetIfAbsent"
	case CommandTDelete:
		return "Delete"
	case CommandTDeleteMany:
		return "DeleteMany"
	case CommandTDeletePrefix:
		return "DeletePrefix"
	case CommandTForceFlush:
		return "ForceFlush"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log).
// Single key commands use Keys[0] (and Values[0]).
type Command struct {
	Type   CommandType
	Keys   [][]byte
	Values [][]byte
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := 1 + 4 + 4 // Type + KeyCount + ValueCount
	for _, k := range command.Keys {
		size += 4 + len(k)
	}
	for _, v := range command.Values {
		size += 4 + len(v)
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for the key count followed by the keys (4 bytes length + data each),
// 4 bytes for the value count followed by the values (4 bytes length + data each).
// All integers are big endian.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())
	result[0] = byte(command.Type)

	pos := putList(result, 1, command.Keys)
	putList(result, pos, command.Values)
	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < 9 {
		return fmt.Errorf("data too short for command")
	}
	command.Type = CommandType(data[0])

	keys, pos, err := readList(data, 1)
	if err != nil {
		return fmt.Errorf("keys: %w", err)
	}
	values, pos, err := readList(data, pos)
	if err != nil {
		return fmt.Errorf("values: %w", err)
	}
	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-pos)
	}

	command.Keys = keys
	command.Values = values
	return nil
}

// Key returns the first key of the command (nil if there is none)
func (command *Command) Key() []byte {
	if len(command.Keys) == 0 {
		return nil
	}
	return command.Keys[0]
}

// Value returns the first value of the command (nil if there is none)
func (command *Command) Value() []byte {
	if len(command.Values) == 0 {
		return nil
	}
	return command.Values[0]
}

func putList(buf []byte, pos int, list [][]byte) int {
	binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(list)))
	pos += 4
	for _, item := range list {
		binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(item)))
		pos += 4
		pos += copy(buf[pos:], item)
	}
	return pos
}

// readList reads a list written by putList. Items are copied so the
// command does not alias the raft log buffer.
func readList(data []byte, pos int) ([][]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for count")
	}
	count := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4

	// every item needs at least its length prefix
	if count > (len(data)-pos)/4 {
		return nil, pos, fmt.Errorf("count %d exceeds data", count)
	}

	list := make([][]byte, count)
	for i := range list {
		if pos+4 > len(data) {
			return nil, pos, fmt.Errorf("data too short for length of item %d", i)
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if n > len(data)-pos {
			return nil, pos, fmt.Errorf("data too short for item %d of length %d", i, n)
		}
		item := make([]byte, n)
		copy(item, data[pos:pos+n])
		list[i] = item
		pos += n
	}
	return list, pos, nil
}
