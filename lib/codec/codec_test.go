package codec

import (
	"bytes"
	"errors"
	"io"
	"math"
	"reflect"
	"testing"
)

// checkRoundTrip encodes every value, checks the declared sizes and decodes it again
func checkRoundTrip[T any](t *testing.T, c Codec[T], values []T) {
	t.Helper()
	for i, v := range values {
		data, err := Encode(c, v)
		if err != nil {
			t.Errorf("value %d: Encode() error = %v", i, err)
			continue
		}
		if len(data) != c.SizeOf(v) {
			t.Errorf("value %d: SizeOf() = %d, encoded %d bytes", i, c.SizeOf(v), len(data))
		}
		if s := c.Size(); s.IsFixed() && len(data) != s.Bytes {
			t.Errorf("value %d: Size() = %s, encoded %d bytes", i, s, len(data))
		}
		got, err := Decode(c, data)
		if err != nil {
			t.Errorf("value %d: Decode() error = %v", i, err)
			continue
		}
		if !reflect.DeepEqual(got, v) {
			t.Errorf("value %d: round trip = %#v, want %#v", i, got, v)
		}
	}
}

func strPtr(s string) *string { return &s }

func TestStandardCodecsRoundTrip(t *testing.T) {
	t.Run("Bool", func(t *testing.T) { checkRoundTrip(t, Bool, []bool{true, false}) })
	t.Run("Int8", func(t *testing.T) { checkRoundTrip(t, Int8, []int8{0, 1, -1, math.MinInt8, math.MaxInt8}) })
	t.Run("Int16", func(t *testing.T) { checkRoundTrip(t, Int16, []int16{0, -300, math.MinInt16, math.MaxInt16}) })
	t.Run("Int32", func(t *testing.T) { checkRoundTrip(t, Int32, []int32{0, 42, -42, math.MinInt32, math.MaxInt32}) })
	t.Run("Int64", func(t *testing.T) { checkRoundTrip(t, Int64, []int64{0, 1 << 40, math.MinInt64, math.MaxInt64}) })
	t.Run("Int", func(t *testing.T) { checkRoundTrip(t, Int, []int{0, -7, math.MaxInt32 + 1}) })
	t.Run("Uint64", func(t *testing.T) { checkRoundTrip(t, Uint64, []uint64{0, math.MaxUint64}) })
	t.Run("Float64", func(t *testing.T) { checkRoundTrip(t, Float64, []float64{0, 3.14159, -1e300, math.Inf(1)}) })
	t.Run("String", func(t *testing.T) { checkRoundTrip(t, String, []string{"", "foo", "你好世界", string([]byte{0, 255})}) })
	t.Run("Bytes", func(t *testing.T) { checkRoundTrip(t, Bytes, [][]byte{{}, {0}, []byte("value")}) })
	t.Run("NullableString", func(t *testing.T) {
		checkRoundTrip(t, NullableString, []*string{nil, strPtr(""), strPtr("bar")})
	})
}

func TestBigEndianLayout(t *testing.T) {
	data, err := Encode(Int32, 0x01020304)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3, 4}) {
		t.Errorf("Encode(Int32) = %v, want big endian [1 2 3 4]", data)
	}

	data, err = Encode(NullableString, nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(data, []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("Encode(nil string) = %v, want -1 length", data)
	}
}

func TestShortPrimitives(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteShortString(&buf, "abc")
	if err != nil || n != 5 {
		t.Fatalf("WriteShortString() = %d, %v; want 5, nil", n, err)
	}
	s, err := ReadShortString(bytes.NewReader(buf.Bytes()), buf.Len())
	if err != nil || s != "abc" {
		t.Errorf("ReadShortString() = %q, %v; want \"abc\", nil", s, err)
	}

	if _, err := WriteShortBytes(io.Discard, make([]byte, math.MaxInt16+1)); err == nil {
		t.Errorf("WriteShortBytes() with oversized input should fail")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		decode func() error
	}{
		{
			name: "truncated int64",
			decode: func() error {
				_, err := Decode(Int64, []byte{1, 2, 3, 4, 5})
				return err
			},
		},
		{
			name: "string longer than input",
			decode: func() error {
				_, err := Decode(String, []byte{0, 0, 0, 10, 'a', 'b'})
				return err
			},
		},
		{
			name: "negative byte array length",
			decode: func() error {
				_, err := Decode(Bytes, []byte{0xff, 0xff, 0xff, 0xfe})
				return err
			},
		},
		{
			name: "invalid bool",
			decode: func() error {
				_, err := Decode(Bool, []byte{7})
				return err
			},
		},
		{
			name: "trailing bytes",
			decode: func() error {
				_, err := Decode(Int8, []byte{1, 2})
				return err
			},
		},
		{
			name: "skip beyond input",
			decode: func() error {
				_, err := DecodeAt(Int8, 3, []byte{1})
				return err
			},
		},
		{
			name: "empty input",
			decode: func() error {
				_, err := Decode(Int32, nil)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode()
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("expected *DecodeError, got %v", err)
			}
		})
	}
}

func TestReadBytesFromStream(t *testing.T) {
	// a huge declared length on a stream of unknown size fails once the input ends
	r := bytes.NewReader([]byte{0x7f, 0xff, 0xff, 0xf0, 'a', 'b', 'c'})
	_, err := ReadBytes(r, -1)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}

	// payloads above the eager limit are still read completely
	payload := bytes.Repeat([]byte{'x'}, maxEagerPayload+10)
	var buf bytes.Buffer
	if _, err := WriteBytes(&buf, payload); err != nil {
		t.Fatal(err)
	}
	got, err := ReadBytes(&buf, -1)
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadBytes returned %d bytes, want %d", len(got), len(payload))
	}
}

func TestEncodeWithPrefix(t *testing.T) {
	prefix := []byte("users:")
	data, err := EncodeWithPrefix(String, prefix, "alice")
	if err != nil {
		t.Fatalf("EncodeWithPrefix() error = %v", err)
	}
	if !bytes.HasPrefix(data, prefix) {
		t.Errorf("encoded key %q does not start with %q", data, prefix)
	}
	got, err := DecodeAt(String, len(prefix), data)
	if err != nil {
		t.Fatalf("DecodeAt() error = %v", err)
	}
	if got != "alice" {
		t.Errorf("DecodeAt() = %q, want %q", got, "alice")
	}
}

// --------------------------------------------------------------------------
// Composite codec built from primitives
// --------------------------------------------------------------------------

type account struct {
	ID     int64
	Name   string
	Active bool
	Email  *string
}

type accountCodec struct{}

func (accountCodec) Size() Size { return Min(8 + 4 + 1 + 4) }

func (accountCodec) SizeOf(a account) int {
	return 8 + String.SizeOf(a.Name) + 1 + NullableString.SizeOf(a.Email)
}

func (accountCodec) WriteTo(w io.Writer, a account) (int, error) {
	total := 0
	for _, write := range []func() (int, error){
		func() (int, error) { return WriteInt64(w, a.ID) },
		func() (int, error) { return WriteString(w, a.Name) },
		func() (int, error) { return WriteBool(w, a.Active) },
		func() (int, error) { return WriteNullableString(w, a.Email) },
	} {
		n, err := write()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (accountCodec) ReadFrom(r io.Reader, available int) (account, error) {
	var a account
	var err error
	if a.ID, err = ReadInt64(r); err != nil {
		return account{}, err
	}
	if a.Name, err = ReadString(r, available-8); err != nil {
		return account{}, err
	}
	if a.Active, err = ReadBool(r); err != nil {
		return account{}, err
	}
	if a.Email, err = ReadNullableString(r, -1); err != nil {
		return account{}, err
	}
	return a, nil
}

func TestCompositeCodec(t *testing.T) {
	checkRoundTrip[account](t, accountCodec{}, []account{
		{ID: 1, Name: "alice", Active: true, Email: strPtr("alice@example.com")},
		{ID: -5, Name: "", Active: false, Email: nil},
	})

	// A truncated record must fail instead of returning the fields read so far
	data, err := Encode[account](accountCodec{}, account{ID: 7, Name: "bob", Email: strPtr("x")})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := Decode[account](accountCodec{}, data[:len(data)-1]); err == nil {
		t.Errorf("Decode() of truncated record should fail")
	}
}

// --------------------------------------------------------------------------
// Registry and tracking
// --------------------------------------------------------------------------

func TestRegistry(t *testing.T) {
	r := NewStandardRegistry()

	c, err := Resolve[string](r)
	if err != nil {
		t.Fatalf("Resolve[string]() error = %v", err)
	}
	if c.Size() != Min(4) {
		t.Errorf("string codec size = %s, want MIN(4)", c.Size())
	}

	_, err = Resolve[account](r)
	var notFound *CodecNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Resolve[account]() error = %v, want *CodecNotFoundError", err)
	}
	if notFound.Type != reflect.TypeOf(account{}) {
		t.Errorf("CodecNotFoundError.Type = %v", notFound.Type)
	}

	Register[account](r, accountCodec{})
	if _, ok := Lookup[account](r); !ok {
		t.Errorf("Lookup[account]() after Register should succeed")
	}
	if len(r.Types()) != 12 {
		t.Errorf("Types() = %v, want 12 entries", r.Types())
	}
}

func TestTracked(t *testing.T) {
	stats := NewStats()
	c := Tracked(String, stats)

	for _, s := range []string{"a", "bb", "ccc"} {
		data, err := Encode(c, s)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if _, err := Decode(c, data); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
	}

	if got := stats.Encoded.GetCount(); got != 3 {
		t.Errorf("encoded samples = %d, want 3", got)
	}
	if got := stats.Decoded.AverageSize(); got != 6 {
		t.Errorf("average decoded size = %d, want 6", got)
	}
}
