package base

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payloads := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{7}, 4096)}
	go func() {
		for i, p := range payloads {
			_ = writeFrame(client, 42, uint64(i+1), p)
		}
	}()

	buf := make([]byte, 64)
	for i, p := range payloads {
		shardID, requestID, data, err := readFrame(server, buf)
		require.NoError(t, err)
		require.Equal(t, uint64(42), shardID)
		require.Equal(t, uint64(i+1), requestID)
		require.Equal(t, p, data)
	}
}

func TestReadFrameRejectsHugeLength(t *testing.T) {
	var h [frameHeaderSize]byte
	binary.BigEndian.PutUint64(h[0:8], 1)
	binary.BigEndian.PutUint64(h[8:16], 2)
	binary.BigEndian.PutUint32(h[16:20], maxFrameSize+1)

	_, _, _, err := readFrame(bytes.NewReader(h[:]), nil)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameTruncated(t *testing.T) {
	var h frameHeader
	h.put(1, 2, 10)
	_, _, _, err := readFrame(bytes.NewReader(append(h[:], 1, 2, 3)), nil)
	require.Error(t, err)
}
