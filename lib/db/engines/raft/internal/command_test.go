package internal

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with key and value",
			command: Command{
				Type:   CommandTSet,
				Keys:   [][]byte{[]byte("testkey")},
				Values: [][]byte{[]byte("testvalue")},
			},
			expected: 1 + 4 + 4 + 7 + 4 + 4 + 9, // Type + KeyCount + Key + ValueCount + Value
		},
		{
			name:     "Command without keys",
			command:  Command{Type: CommandTForceFlush},
			expected: 1 + 4 + 4,
		},
		{
			name: "Command with empty key",
			command: Command{
				Type: CommandTDeletePrefix,
				Keys: [][]byte{{}},
			},
			expected: 1 + 4 + 4 + 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if size := tt.command.SizeBytes(); size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Set",
			command: Command{
				Type:   CommandTSet,
				Keys:   [][]byte{[]byte("testkey")},
				Values: [][]byte{[]byte("testvalue")},
			},
		},
		{
			name: "Delete without value",
			command: Command{
				Type: CommandTDelete,
				Keys: [][]byte{[]byte("testkey")},
			},
		},
		{
			name: "Empty value",
			command: Command{
				Type:   CommandTSwap,
				Keys:   [][]byte{[]byte("testkey")},
				Values: [][]byte{{}},
			},
		},
		{
			name: "Binary data",
			command: Command{
				Type:   CommandTSetIfAbsent,
				Keys:   [][]byte{{0, 1, 0xff}},
				Values: [][]byte{{0, 1, 2, 3, 254, 255}},
			},
		},
		{
			name: "Batch",
			command: Command{
				Type:   CommandTSetMany,
				Keys:   [][]byte{[]byte("a"), []byte("bb"), []byte("你好")},
				Values: [][]byte{[]byte("1"), {}, []byte("unicode test")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()
			if len(data) != tt.command.SizeBytes() {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d", tt.command.SizeBytes(), len(data))
			}

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if got.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", got.Type, tt.command.Type)
			}
			if len(got.Keys) != len(tt.command.Keys) || len(got.Values) != len(tt.command.Values) {
				t.Fatalf("length mismatch: got %d/%d, want %d/%d",
					len(got.Keys), len(got.Values), len(tt.command.Keys), len(tt.command.Values))
			}
			for i := range got.Keys {
				if !bytes.Equal(got.Keys[i], tt.command.Keys[i]) {
					t.Errorf("Key %d mismatch: got %q, want %q", i, got.Keys[i], tt.command.Keys[i])
				}
			}
			for i := range got.Values {
				if !bytes.Equal(got.Values[i], tt.command.Values[i]) {
					t.Errorf("Value %d mismatch: got %q, want %q", i, got.Values[i], tt.command.Values[i])
				}
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	valid := (&Command{Type: CommandTSet, Keys: [][]byte{[]byte("k")}, Values: [][]byte{[]byte("v")}}).Serialize()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "Empty data", data: []byte{}},
		{name: "Header only", data: []byte{1, 2, 3, 4, 5}},
		{
			name: "Key count too large",
			data: func() []byte {
				data := make([]byte, 9)
				binary.BigEndian.PutUint32(data[1:5], 1000)
				return data
			}(),
		},
		{
			name: "Truncated value",
			data: valid[:len(valid)-1],
		},
		{
			name: "Trailing bytes",
			data: append(append([]byte{}, valid...), 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			if err := cmd.Deserialize(tt.data); err == nil {
				t.Fatalf("Expected error but got nil")
			}
		})
	}
}

// TestBinaryFormat tests the exact binary format of serialized commands
func TestBinaryFormat(t *testing.T) {
	cmd := Command{
		Type:   CommandTSet,
		Keys:   [][]byte{[]byte("testkey")},
		Values: [][]byte{[]byte("testvalue")},
	}

	expected := make([]byte, 0, cmd.SizeBytes())
	expected = append(expected, byte(CommandTSet))
	expected = binary.BigEndian.AppendUint32(expected, 1)
	expected = binary.BigEndian.AppendUint32(expected, 7)
	expected = append(expected, "testkey"...)
	expected = binary.BigEndian.AppendUint32(expected, 1)
	expected = binary.BigEndian.AppendUint32(expected, 9)
	expected = append(expected, "testvalue"...)

	if serialized := cmd.Serialize(); !bytes.Equal(serialized, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", serialized, expected)
	}
}

func TestFoundEncoding(t *testing.T) {
	value, found, err := DecodeFound(EncodeFound(nil, false))
	if err != nil || found || value != nil {
		t.Errorf("DecodeFound(not found) = %v, %v, %v", value, found, err)
	}

	value, found, err = DecodeFound(EncodeFound(nil, true))
	if err != nil || !found || value == nil || len(value) != 0 {
		t.Errorf("DecodeFound(empty value) = %v, %v, %v", value, found, err)
	}

	value, found, err = DecodeFound(EncodeFound([]byte("old"), true))
	if err != nil || !found || string(value) != "old" {
		t.Errorf("DecodeFound(old) = %q, %v, %v", value, found, err)
	}

	if _, _, err := DecodeFound(nil); err == nil {
		t.Error("DecodeFound(nil) should fail")
	}
}
