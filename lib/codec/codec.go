package codec

import (
	"bytes"
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// Size estimates
// --------------------------------------------------------------------------

// SizeKind describes how reliable a Size is.
type SizeKind uint8

const (
	SizeFixed   SizeKind = iota // every value encodes to exactly Bytes bytes
	SizeMin                     // every value encodes to at least Bytes bytes
	SizeAverage                 // Bytes is a typical encoded size
)

func (k SizeKind) String() string {
	switch k {
	case SizeFixed:
		return "FIXED"
	case SizeMin:
		return "MIN"
	case SizeAverage:
		return "AVERAGE"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Size is the encoded size a codec declares for its values.
// It is used to pre-size buffers and by engines that only accept fixed-width keys.
type Size struct {
	Kind  SizeKind
	Bytes int
}

// Fixed returns a size for codecs that always emit exactly n bytes.
func Fixed(n int) Size { return Size{Kind: SizeFixed, Bytes: n} }

// Min returns a size for codecs that emit at least n bytes.
func Min(n int) Size { return Size{Kind: SizeMin, Bytes: n} }

// Average returns a size for codecs that emit about n bytes.
func Average(n int) Size { return Size{Kind: SizeAverage, Bytes: n} }

// IsFixed reports whether the size is exact for all values.
func (s Size) IsFixed() bool { return s.Kind == SizeFixed }

func (s Size) String() string {
	return fmt.Sprintf("%s(%d)", s.Kind, s.Bytes)
}

// --------------------------------------------------------------------------
// Codec interface
// --------------------------------------------------------------------------

// Codec converts values of type T to and from their binary representation.
//
// Implementations must be stateless and safe for concurrent use. For every valid
// value v, reading back the bytes written for v yields v again. If Size reports
// SizeFixed, WriteTo must emit exactly Size().Bytes bytes for every value.
type Codec[T any] interface {
	// Size returns the declared size estimate of encoded values.
	Size() Size
	// SizeOf returns the exact encoded length of value.
	SizeOf(value T) int
	// WriteTo encodes value into w and returns the number of bytes written.
	WriteTo(w io.Writer, value T) (int, error)
	// ReadFrom decodes one value from r. available is the number of bytes left in
	// the source, or -1 if unknown. A value whose encoding declares more bytes than
	// available fails with a *DecodeError.
	ReadFrom(r io.Reader, available int) (T, error)
}

// --------------------------------------------------------------------------
// Byte slice helpers
// --------------------------------------------------------------------------

// Encode returns the encoding of value.
func Encode[T any](c Codec[T], value T) ([]byte, error) {
	return EncodeWithPrefix(c, nil, value)
}

// EncodeWithPrefix returns prefix followed by the encoding of value.
// Namespaced stores use it to build physical keys.
func EncodeWithPrefix[T any](c Codec[T], prefix []byte, value T) ([]byte, error) {
	hint := c.Size().Bytes
	if hint < 0 {
		hint = 0
	}
	buf := bytes.NewBuffer(make([]byte, 0, len(prefix)+hint))
	buf.Write(prefix)
	if _, err := c.WriteTo(buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decodes a value that occupies all of data.
func Decode[T any](c Codec[T], data []byte) (T, error) {
	return DecodeAt(c, 0, data)
}

// DecodeAt decodes a value from data after skipping the first skip bytes.
// Trailing bytes after the value are reported as a *DecodeError.
func DecodeAt[T any](c Codec[T], skip int, data []byte) (T, error) {
	var zero T
	if skip < 0 || skip > len(data) {
		return zero, decodeErrorf("value", "cannot skip %d of %d bytes", skip, len(data))
	}
	r := bytes.NewReader(data[skip:])
	value, err := c.ReadFrom(r, len(data)-skip)
	if err != nil {
		return zero, err
	}
	if r.Len() > 0 {
		return zero, decodeErrorf("value", "%d trailing bytes", r.Len())
	}
	return value, nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

// remaining returns the bytes left of available after what was read, or -1 if unknown.
func (c *countingReader) remaining(available int) int {
	if available < 0 {
		return -1
	}
	return available - c.n
}
