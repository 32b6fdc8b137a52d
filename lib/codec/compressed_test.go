package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestCompressedRoundTrip(t *testing.T) {
	events := []string{strings.Repeat("event-", 200), "", "short"}

	for _, algo := range []Algorithm{Snappy, Zstd, LZ4} {
		t.Run(algo.String(), func(t *testing.T) {
			c, err := Compressed(ListOf(String, 3), algo)
			if err != nil {
				t.Fatalf("Compressed() error = %v", err)
			}
			checkRoundTrip(t, c, [][]string{events, {}})

			plain, _ := Encode(ListOf(String, 3), events)
			packed, _ := Encode(c, events)
			if len(packed) >= len(plain) {
				t.Errorf("compressed size %d is not smaller than plain size %d", len(packed), len(plain))
			}
		})
	}
}

func TestCompressedRejectsCorruptBlocks(t *testing.T) {
	for _, algo := range []Algorithm{Zstd, LZ4} {
		t.Run(algo.String(), func(t *testing.T) {
			c, err := Compressed(String, algo)
			if err != nil {
				t.Fatalf("Compressed() error = %v", err)
			}
			var buf bytes.Buffer
			if _, err := WriteBytes(&buf, []byte("definitely not a compressed frame")); err != nil {
				t.Fatal(err)
			}
			_, err = Decode(c, buf.Bytes())
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Decode() error = %v, want *DecodeError", err)
			}
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := map[string]Algorithm{"": 0, "none": 0, "Snappy": Snappy, "zstd": Zstd, " lz4 ": LZ4}
	for name, want := range tests {
		got, err := ParseAlgorithm(name)
		if err != nil || got != want {
			t.Errorf("ParseAlgorithm(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseAlgorithm("brotli"); err == nil {
		t.Errorf("ParseAlgorithm(brotli) should fail")
	}
	if _, err := Compressed(String, 0); err == nil {
		t.Errorf("Compressed() without algorithm should fail")
	}
}
