package codec

import "io"

// Standard codecs for the primitive Go types.
var (
	Bool           Codec[bool]    = boolCodec{}
	Int8           Codec[int8]    = int8Codec{}
	Int16          Codec[int16]   = int16Codec{}
	Int32          Codec[int32]   = int32Codec{}
	Int64          Codec[int64]   = int64Codec{}
	Int            Codec[int]     = intCodec{}
	Uint64         Codec[uint64]  = uint64Codec{}
	Float64        Codec[float64] = float64Codec{}
	String         Codec[string]  = stringCodec{}
	Bytes          Codec[[]byte]  = bytesCodec{}
	NullableString Codec[*string] = nullableStringCodec{}
)

type boolCodec struct{}

func (boolCodec) Size() Size { return Fixed(1) }
func (boolCodec) SizeOf(bool) int { return 1 }
func (boolCodec) WriteTo(w io.Writer, v bool) (int, error) { return WriteBool(w, v) }
func (boolCodec) ReadFrom(r io.Reader, _ int) (bool, error) { return ReadBool(r) }

type int8Codec struct{}

func (int8Codec) Size() Size { return Fixed(1) }
func (int8Codec) SizeOf(int8) int { return 1 }
func (int8Codec) WriteTo(w io.Writer, v int8) (int, error) { return WriteInt8(w, v) }
func (int8Codec) ReadFrom(r io.Reader, _ int) (int8, error) { return ReadInt8(r) }

type int16Codec struct{}

func (int16Codec) Size() Size { return Fixed(2) }
func (int16Codec) SizeOf(int16) int { return 2 }
func (int16Codec) WriteTo(w io.Writer, v int16) (int, error) { return WriteInt16(w, v) }
func (int16Codec) ReadFrom(r io.Reader, _ int) (int16, error) { return ReadInt16(r) }

type int32Codec struct{}

func (int32Codec) Size() Size { return Fixed(4) }
func (int32Codec) SizeOf(int32) int { return 4 }
func (int32Codec) WriteTo(w io.Writer, v int32) (int, error) { return WriteInt32(w, v) }
func (int32Codec) ReadFrom(r io.Reader, _ int) (int32, error) { return ReadInt32(r) }

type int64Codec struct{}

func (int64Codec) Size() Size { return Fixed(8) }
func (int64Codec) SizeOf(int64) int { return 8 }
func (int64Codec) WriteTo(w io.Writer, v int64) (int, error) { return WriteInt64(w, v) }
func (int64Codec) ReadFrom(r io.Reader, _ int) (int64, error) { return ReadInt64(r) }

// intCodec always uses 8 bytes so that encodings are portable between platforms.
type intCodec struct{}

func (intCodec) Size() Size { return Fixed(8) }
func (intCodec) SizeOf(int) int { return 8 }
func (intCodec) WriteTo(w io.Writer, v int) (int, error) { return WriteInt64(w, int64(v)) }
func (intCodec) ReadFrom(r io.Reader, _ int) (int, error) {
	v, err := ReadInt64(r)
	return int(v), err
}

type uint64Codec struct{}

func (uint64Codec) Size() Size { return Fixed(8) }
func (uint64Codec) SizeOf(uint64) int { return 8 }
func (uint64Codec) WriteTo(w io.Writer, v uint64) (int, error) { return WriteUint64(w, v) }
func (uint64Codec) ReadFrom(r io.Reader, _ int) (uint64, error) { return ReadUint64(r) }

type float64Codec struct{}

func (float64Codec) Size() Size { return Fixed(8) }
func (float64Codec) SizeOf(float64) int { return 8 }
func (float64Codec) WriteTo(w io.Writer, v float64) (int, error) { return WriteFloat64(w, v) }
func (float64Codec) ReadFrom(r io.Reader, _ int) (float64, error) { return ReadFloat64(r) }

type stringCodec struct{}

func (stringCodec) Size() Size { return Min(4) }
func (stringCodec) SizeOf(v string) int { return 4 + len(v) }
func (stringCodec) WriteTo(w io.Writer, v string) (int, error) { return WriteString(w, v) }
func (stringCodec) ReadFrom(r io.Reader, available int) (string, error) {
	return ReadString(r, available)
}

type bytesCodec struct{}

func (bytesCodec) Size() Size { return Min(4) }
func (bytesCodec) SizeOf(v []byte) int { return 4 + len(v) }
func (bytesCodec) WriteTo(w io.Writer, v []byte) (int, error) { return WriteBytes(w, v) }
func (bytesCodec) ReadFrom(r io.Reader, available int) ([]byte, error) {
	return ReadBytes(r, available)
}

type nullableStringCodec struct{}

func (nullableStringCodec) Size() Size { return Min(4) }
func (nullableStringCodec) SizeOf(v *string) int {
	if v == nil {
		return 4
	}
	return 4 + len(*v)
}
func (nullableStringCodec) WriteTo(w io.Writer, v *string) (int, error) {
	return WriteNullableString(w, v)
}
func (nullableStringCodec) ReadFrom(r io.Reader, available int) (*string, error) {
	return ReadNullableString(r, available)
}
