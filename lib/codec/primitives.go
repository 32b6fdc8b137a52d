package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Building blocks for composite codecs. All integers are big endian; byte arrays
// and strings carry a length prefix (int32, or int16 for the short variants) and
// nullable variants use a length of -1 for nil.

// --------------------------------------------------------------------------
// Low level helpers
// --------------------------------------------------------------------------

func readFull(r io.Reader, buf []byte, what string) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return &DecodeError{What: what, Msg: "truncated input", Err: err}
	}
	return nil
}

func checkAvailable(what string, need, available int) error {
	if available >= 0 && need > available {
		return decodeErrorf(what, "declares %d bytes but only %d are available", need, available)
	}
	return nil
}

// --------------------------------------------------------------------------
// Fixed width values
// --------------------------------------------------------------------------

func WriteBool(w io.Writer, v bool) (int, error) {
	if v {
		return w.Write([]byte{1})
	}
	return w.Write([]byte{0})
}

func ReadBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if err := readFull(r, buf[:], "bool"); err != nil {
		return false, err
	}
	switch buf[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, decodeErrorf("bool", "invalid byte 0x%02x", buf[0])
	}
}

func WriteInt8(w io.Writer, v int8) (int, error) {
	return w.Write([]byte{byte(v)})
}

func ReadInt8(r io.Reader) (int8, error) {
	var buf [1]byte
	if err := readFull(r, buf[:], "int8"); err != nil {
		return 0, err
	}
	return int8(buf[0]), nil
}

func WriteInt16(w io.Writer, v int16) (int, error) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(v))
	return w.Write(buf[:])
}

func ReadInt16(r io.Reader) (int16, error) {
	var buf [2]byte
	if err := readFull(r, buf[:], "int16"); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(buf[:])), nil
}

func WriteInt32(w io.Writer, v int32) (int, error) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return w.Write(buf[:])
}

func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if err := readFull(r, buf[:], "int32"); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func WriteInt64(w io.Writer, v int64) (int, error) {
	return WriteUint64(w, uint64(v))
}

func ReadInt64(r io.Reader) (int64, error) {
	v, err := ReadUint64(r)
	return int64(v), err
}

func WriteUint64(w io.Writer, v uint64) (int, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return w.Write(buf[:])
}

func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if err := readFull(r, buf[:], "int64"); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func WriteFloat64(w io.Writer, v float64) (int, error) {
	return WriteUint64(w, math.Float64bits(v))
}

func ReadFloat64(r io.Reader) (float64, error) {
	bits, err := ReadUint64(r)
	return math.Float64frombits(bits), err
}

// --------------------------------------------------------------------------
// Length prefixed values
// --------------------------------------------------------------------------

// WriteBytes writes an int32 length followed by b.
func WriteBytes(w io.Writer, b []byte) (int, error) {
	n, err := WriteInt32(w, int32(len(b)))
	if err != nil {
		return n, err
	}
	m, err := w.Write(b)
	return n + m, err
}

// ReadBytes reads a value written by WriteBytes. available counts the length
// prefix too; pass -1 if unknown.
func ReadBytes(r io.Reader, available int) ([]byte, error) {
	length, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, decodeErrorf("bytes", "negative length %d", length)
	}
	return readPayload(r, int(length), available-4, available >= 0, "bytes")
}

// WriteNullableBytes is WriteBytes with a -1 length for nil.
func WriteNullableBytes(w io.Writer, b []byte) (int, error) {
	if b == nil {
		return WriteInt32(w, -1)
	}
	return WriteBytes(w, b)
}

// ReadNullableBytes reads a value written by WriteNullableBytes.
func ReadNullableBytes(r io.Reader, available int) ([]byte, error) {
	length, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if length == -1 {
		return nil, nil
	}
	if length < 0 {
		return nil, decodeErrorf("nullable bytes", "invalid length %d", length)
	}
	return readPayload(r, int(length), available-4, available >= 0, "nullable bytes")
}

// WriteShortBytes writes an int16 length followed by b. b must be shorter than 32768 bytes.
func WriteShortBytes(w io.Writer, b []byte) (int, error) {
	if len(b) > math.MaxInt16 {
		return 0, fmt.Errorf("codec: short byte array of length %d exceeds %d", len(b), math.MaxInt16)
	}
	n, err := WriteInt16(w, int16(len(b)))
	if err != nil {
		return n, err
	}
	m, err := w.Write(b)
	return n + m, err
}

// ReadShortBytes reads a value written by WriteShortBytes.
func ReadShortBytes(r io.Reader, available int) ([]byte, error) {
	length, err := ReadInt16(r)
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, decodeErrorf("short bytes", "negative length %d", length)
	}
	return readPayload(r, int(length), available-2, available >= 0, "short bytes")
}

func readPayload(r io.Reader, length, available int, known bool, what string) ([]byte, error) {
	if known {
		if err := checkAvailable(what, length, available); err != nil {
			return nil, err
		}
	}
	if known || length <= maxEagerPayload {
		buf := make([]byte, length)
		if err := readFull(r, buf, what); err != nil {
			return nil, err
		}
		return buf, nil
	}
	// the length of an unbounded stream is not trusted, the buffer only grows
	// with the bytes that actually arrive
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(length)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &DecodeError{What: what, Msg: "truncated input", Err: err}
	}
	return buf.Bytes(), nil
}

// maxEagerPayload is the largest declared length allocated up front when the
// size of the input is unknown
const maxEagerPayload = 64 << 10

func WriteString(w io.Writer, s string) (int, error) {
	return WriteBytes(w, []byte(s))
}

func ReadString(r io.Reader, available int) (string, error) {
	b, err := ReadBytes(r, available)
	return string(b), err
}

// WriteNullableString writes s with a -1 length for nil.
func WriteNullableString(w io.Writer, s *string) (int, error) {
	if s == nil {
		return WriteInt32(w, -1)
	}
	return WriteBytes(w, []byte(*s))
}

func ReadNullableString(r io.Reader, available int) (*string, error) {
	b, err := ReadNullableBytes(r, available)
	if err != nil || b == nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func WriteShortString(w io.Writer, s string) (int, error) {
	return WriteShortBytes(w, []byte(s))
}

func ReadShortString(r io.Reader, available int) (string, error) {
	b, err := ReadShortBytes(r, available)
	return string(b), err
}
