package serializer

import (
	"testing"

	"github.com/ValentinKolb/evkv/rpc/common"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
	"CBOR":   NewCBORSerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Set request
		{
			MsgType: common.MsgTSet,
			Key:     []byte("test-key"),
			Value:   []byte("test-value"),
		},

		// Get response
		{
			MsgType: common.MsgTGet,
			Value:   []byte("test-value"),
			Ok:      true,
		},

		// SetMany request
		{
			MsgType: common.MsgTSetMany,
			Keys:    [][]byte{[]byte("a"), []byte("b")},
			Values:  [][]byte{[]byte("1"), []byte("22")},
		},

		// GetMany response
		{
			MsgType: common.MsgTGetMany,
			Values:  [][]byte{[]byte("1"), []byte("x")},
			Found:   []bool{true, false},
		},

		// Count response
		{
			MsgType: common.MsgTCount,
			Key:     []byte("prefix:"),
			Count:   1 << 40,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Code:    common.RetCClosed,
			Err:     "test error message",
		},

		// Message with all fields filled
		{
			MsgType: common.MsgTScan,
			Key:     []byte{0, 1, 2},
			Value:   []byte{0xff},
			Keys:    [][]byte{[]byte("k")},
			Values:  [][]byte{[]byte("v")},
			Found:   []bool{true},
			Count:   3,
			Ok:      true,
			Code:    common.RetCInvalidOperation,
			Err:     "x",
			Meta:    []byte(`{"name":"test"}`),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range testMessages() {
				data, err := serializer.Serialize(msg)
				require.NoError(t, err, "message %d", i)

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), "message %d", i)
				require.Equal(t, msg, result, "message %d", i)
			}
		})
	}
}

// TestDeserializeResetsMessage makes sure no field of a reused message survives
func TestDeserializeResetsMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(common.Message{MsgType: common.MsgTHas})
			require.NoError(t, err)

			msg := common.Message{MsgType: common.MsgTGet, Key: []byte("old"), Ok: true, Err: "old"}
			require.NoError(t, serializer.Deserialize(data, &msg))
			require.Equal(t, common.Message{MsgType: common.MsgTHas}, msg)
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTForceFlush; msgType++ {
				data, err := serializer.Serialize(common.Message{MsgType: msgType})
				require.NoError(t, err, msgType.String())

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), msgType.String())
				require.Equal(t, msgType, result.MsgType)
			}
		})
	}
}

// TestNilElements checks that missing values in a list survive the round trip
func TestNilElements(t *testing.T) {
	msg := common.Message{
		MsgType: common.MsgTGetMany,
		Values:  [][]byte{[]byte("a"), nil, {}},
	}

	for _, name := range []string{"Binary", "JSON", "CBOR"} {
		t.Run(name, func(t *testing.T) {
			serializer := testSerializers[name]()
			data, err := serializer.Serialize(msg)
			require.NoError(t, err)

			var result common.Message
			require.NoError(t, serializer.Deserialize(data, &result))
			require.Len(t, result.Values, 3)
			require.Equal(t, []byte("a"), result.Values[0])
			require.Nil(t, result.Values[1])
			require.Len(t, result.Values[2], 0)
		})
	}
}

// TestBinaryEmptyValues tests that the binary serializer keeps nil and empty slices apart
func TestBinaryEmptyValues(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{"Empty message", common.Message{}},
		{"Empty value", common.Message{MsgType: common.MsgTSet, Key: []byte("k"), Value: []byte{}}},
		{"Empty key", common.Message{MsgType: common.MsgTGet, Key: []byte{}}},
		{"Empty lists", common.Message{MsgType: common.MsgTSetMany, Keys: [][]byte{}, Values: [][]byte{}}},
		{"Empty element", common.Message{MsgType: common.MsgTSetMany, Keys: [][]byte{{}}, Values: [][]byte{{}}}},
		{"Empty meta", common.Message{MsgType: common.MsgTInfo, Meta: []byte{}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			require.NoError(t, err)

			var result common.Message
			require.NoError(t, serializer.Deserialize(data, &result))
			require.Equal(t, tc.msg, result)
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // Message type and half of the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 2, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Huge list count",
			data:        []byte{1, 0, 4, 0xff, 0xff, 0xff, 0xff}, // Claims 4G keys
			expectError: true,
		},
		{
			name:        "Missing count",
			data:        []byte{1, 0, 32, 0, 0}, // Count flag with 2 of 8 bytes
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{common.SerializerBinary, common.SerializerJSON, common.SerializerGOB, common.SerializerCBOR} {
		s, err := New(name)
		require.NoError(t, err)
		require.NotNil(t, s)
	}
	_, err := New("xml")
	require.Error(t, err)
}
