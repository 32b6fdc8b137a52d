package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Frame layout (big endian):
//
//	| shard id (8) | request id (8) | payload length (4) | payload (n) |
const (
	frameHeaderSize = 20

	// maxFrameSize bounds the payload a peer can announce, a corrupt header
	// must not make the reader allocate gigabytes
	maxFrameSize = 256 << 20
)

// ErrFrameTooLarge is returned when a frame exceeds maxFrameSize
var ErrFrameTooLarge = fmt.Errorf("frame exceeds %d bytes", maxFrameSize)

type frameHeader [frameHeaderSize]byte

func (h *frameHeader) put(shardID, requestID uint64, length int) {
	binary.BigEndian.PutUint64(h[0:8], shardID)
	binary.BigEndian.PutUint64(h[8:16], requestID)
	binary.BigEndian.PutUint32(h[16:20], uint32(length))
}

func (h *frameHeader) get() (shardID, requestID uint64, length int) {
	return binary.BigEndian.Uint64(h[0:8]), binary.BigEndian.Uint64(h[8:16]), int(binary.BigEndian.Uint32(h[16:20]))
}

// writeFrame writes header and payload with a single vectored write
func writeFrame(conn net.Conn, shardID uint64, requestID uint64, data []byte) error {
	if len(data) > maxFrameSize {
		return ErrFrameTooLarge
	}
	var h frameHeader
	h.put(shardID, requestID, len(data))

	b := net.Buffers{h[:], data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one frame. The payload is read into buf when it fits,
// otherwise into a new slice. A frame without payload yields an empty slice.
func readFrame(conn io.Reader, buf []byte) (shardID uint64, requestID uint64, data []byte, err error) {
	var h frameHeader
	if _, err = io.ReadFull(conn, h[:]); err != nil {
		return 0, 0, nil, err
	}

	shardID, requestID, n := h.get()
	if n > maxFrameSize {
		return shardID, requestID, nil, ErrFrameTooLarge
	}
	if n == 0 {
		return shardID, requestID, []byte{}, nil
	}

	if len(buf) < n {
		buf = make([]byte, n)
	}
	if _, err = io.ReadFull(conn, buf[:n]); err != nil {
		return shardID, requestID, nil, err
	}
	return shardID, requestID, buf[:n], nil
}
