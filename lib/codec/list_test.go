package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestListCodecRoundTrip(t *testing.T) {
	checkRoundTrip(t, ListOf(String, 10), [][]string{
		{},
		{"a"},
		{"a", "b", "a"},
		{"", "你好", "with spaces"},
	})
	checkRoundTrip(t, ListOf(Int64, -1), [][]int64{{}, {1, -2, 3}})
	checkRoundTrip(t, ListOf(ListOf(Int8, 2), 2), [][][]int8{{{1, 2}, {}, {3}}})
}

func TestListCodecLayout(t *testing.T) {
	data, err := Encode(ListOf(Int16, 2), []int16{1, 2})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{0, 0, 0, 2, 0, 1, 0, 2}
	if !bytes.Equal(data, want) {
		t.Errorf("Encode() = %v, want %v", data, want)
	}
}

func TestListCodecSize(t *testing.T) {
	tests := []struct {
		name string
		got  Size
		want Size
	}{
		{"fixed elements", ListOf(Int32, 10).Size(), Average(44)},
		{"min elements", ListOf(String, 10).Size(), Average(44)},
		{"unknown count", ListOf(Int32, -1).Size(), Min(4)},
		{"nested unknown", ListOf(ListOf(Int32, -1), 3).Size(), Average(16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Size() = %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestListCodecRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"negative count", []byte{0xff, 0xff, 0xff, 0xff}},
		{"count exceeds input", []byte{0, 0, 0x10, 0, 0, 0, 0, 1}},
		{"truncated element", []byte{0, 0, 0, 2, 0, 0, 0, 1, 0, 0}},
		{"missing count", []byte{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(ListOf(Int32, 4), tt.data)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Decode() error = %v, want *DecodeError", err)
			}
		})
	}
}
