package codec

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm selects the compression used by Compressed.
type Algorithm uint8

const (
	Snappy Algorithm = iota + 1
	Zstd
	LZ4
)

func (a Algorithm) String() string {
	switch a {
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// ParseAlgorithm parses the name of a compression algorithm. The empty string
// and "none" return 0, meaning no compression.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return 0, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm %q (expected one of: none, snappy, zstd, lz4)", name)
	}
}

// compressedCodec stores the inner encoding as a length prefixed compressed block.
type compressedCodec[T any] struct {
	inner   Codec[T]
	algo    Algorithm
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Compressed wraps inner so that every value is written as
// [int32 length][compressed inner encoding].
func Compressed[T any](inner Codec[T], algo Algorithm) (Codec[T], error) {
	c := &compressedCodec[T]{inner: inner, algo: algo}
	switch algo {
	case Snappy, LZ4:
	case Zstd:
		var err error
		if c.encoder, err = zstd.NewWriter(nil); err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		if c.decoder, err = zstd.NewReader(nil); err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
	}
	return c, nil
}

func (c *compressedCodec[T]) Size() Size {
	return Min(4)
}

func (c *compressedCodec[T]) SizeOf(value T) int {
	block, err := c.compress(value)
	if err != nil {
		return 4
	}
	return 4 + len(block)
}

func (c *compressedCodec[T]) WriteTo(w io.Writer, value T) (int, error) {
	block, err := c.compress(value)
	if err != nil {
		return 0, err
	}
	return WriteBytes(w, block)
}

func (c *compressedCodec[T]) ReadFrom(r io.Reader, available int) (T, error) {
	var zero T
	block, err := ReadBytes(r, available)
	if err != nil {
		return zero, err
	}
	raw, err := c.decompress(block)
	if err != nil {
		return zero, &DecodeError{What: c.algo.String() + " block", Msg: "corrupt data", Err: err}
	}
	return Decode(c.inner, raw)
}

func (c *compressedCodec[T]) compress(value T) ([]byte, error) {
	raw, err := Encode(c.inner, value)
	if err != nil {
		return nil, err
	}
	switch c.algo {
	case Snappy:
		return snappy.Encode(nil, raw), nil
	case Zstd:
		return c.encoder.EncodeAll(raw, nil), nil
	default:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, fmt.Errorf("lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 close: %w", err)
		}
		return buf.Bytes(), nil
	}
}

func (c *compressedCodec[T]) decompress(block []byte) ([]byte, error) {
	switch c.algo {
	case Snappy:
		return snappy.Decode(nil, block)
	case Zstd:
		return c.decoder.DecodeAll(block, nil)
	default:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(block)))
	}
}
