package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/evkv/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	[1 byte MsgType][2 bytes flags][present fields in flag order]
//
// Byte slices are written as [uint32 length][bytes], slice lists as
// [uint32 count] followed by one [int32 length][bytes] per element, where
// length -1 marks a nil element. All integers are big endian.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey    uint16 = 1 << 0
	hasValue  uint16 = 1 << 1
	hasKeys   uint16 = 1 << 2
	hasValues uint16 = 1 << 3
	hasFound  uint16 = 1 << 4
	hasCount  uint16 = 1 << 5
	isOk      uint16 = 1 << 6 // no payload
	hasCode   uint16 = 1 << 7
	hasErr    uint16 = 1 << 8
	hasMeta   uint16 = 1 << 9
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	var flags uint16
	pos := headerSize

	if msg.Key != nil {
		flags |= hasKey
		pos = putBytes(result, pos, msg.Key)
	}
	if msg.Value != nil {
		flags |= hasValue
		pos = putBytes(result, pos, msg.Value)
	}
	if msg.Keys != nil {
		flags |= hasKeys
		pos = putList(result, pos, msg.Keys)
	}
	if msg.Values != nil {
		flags |= hasValues
		pos = putList(result, pos, msg.Values)
	}
	if msg.Found != nil {
		flags |= hasFound
		binary.BigEndian.PutUint32(result[pos:], uint32(len(msg.Found)))
		pos += 4
		for _, f := range msg.Found {
			if f {
				result[pos] = 1
			}
			pos++
		}
	}
	if msg.Count != 0 {
		flags |= hasCount
		binary.BigEndian.PutUint64(result[pos:], uint64(msg.Count))
		pos += 8
	}
	if msg.Ok {
		flags |= isOk
	}
	if msg.Code != common.RetCSuccess {
		flags |= hasCode
		binary.BigEndian.PutUint64(result[pos:], uint64(msg.Code))
		pos += 8
	}
	if msg.Err != "" {
		flags |= hasErr
		pos = putBytes(result, pos, []byte(msg.Err))
	}
	if msg.Meta != nil {
		flags |= hasMeta
		pos = putBytes(result, pos, msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result[:pos], nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:3])
	r := reader{data: data, pos: headerSize}

	if flags&hasKey != 0 {
		msg.Key = r.bytes("key")
	}
	if flags&hasValue != 0 {
		msg.Value = r.bytes("value")
	}
	if flags&hasKeys != 0 {
		msg.Keys = r.list("keys")
	}
	if flags&hasValues != 0 {
		msg.Values = r.list("values")
	}
	if flags&hasFound != 0 {
		n := r.uint32("found count")
		if raw := r.take(int(n), "found flags"); raw != nil {
			msg.Found = make([]bool, n)
			for i, f := range raw {
				msg.Found[i] = f != 0
			}
		}
	}
	if flags&hasCount != 0 {
		msg.Count = int64(r.uint64("count"))
	}
	msg.Ok = flags&isOk != 0
	if flags&hasCode != 0 {
		msg.Code = common.RetCode(r.uint64("code"))
	}
	if flags&hasErr != 0 {
		msg.Err = string(r.bytes("error"))
	}
	if flags&hasMeta != 0 {
		msg.Meta = r.bytes("meta")
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the maximum size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize
	if msg.Key != nil {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Keys != nil {
		size += listSize(msg.Keys)
	}
	if msg.Values != nil {
		size += listSize(msg.Values)
	}
	if msg.Found != nil {
		size += 4 + len(msg.Found)
	}
	size += 8 + 8 // count, code
	size += 4 + len(msg.Err)
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}
	return size
}

func listSize(list [][]byte) int {
	size := 4
	for _, e := range list {
		size += 4 + len(e)
	}
	return size
}

func putBytes(buf []byte, pos int, data []byte) int {
	binary.BigEndian.PutUint32(buf[pos:], uint32(len(data)))
	pos += 4
	return pos + copy(buf[pos:], data)
}

func putList(buf []byte, pos int, list [][]byte) int {
	binary.BigEndian.PutUint32(buf[pos:], uint32(len(list)))
	pos += 4
	for _, e := range list {
		if e == nil {
			binary.BigEndian.PutUint32(buf[pos:], ^uint32(0)) // int32(-1)
			pos += 4
			continue
		}
		pos = putBytes(buf, pos, e)
	}
	return pos
}

// reader reads fields until the first error
type reader struct {
	data []byte
	pos  int
	err  error
}

// take returns the next n bytes (copied) or nil after an error
func (r *reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out
}

func (r *reader) uint32(field string) uint32 {
	if r.err != nil {
		return 0
	}
	if r.pos+4 > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) uint64(field string) uint64 {
	if r.err != nil {
		return 0
	}
	if r.pos+8 > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) bytes(field string) []byte {
	n := r.uint32(field + " length")
	return r.take(int(n), field)
}

func (r *reader) list(field string) [][]byte {
	n := r.uint32(field + " count")
	if r.err != nil {
		return nil
	}
	// every element needs at least its length prefix
	if int(n) > (len(r.data)-r.pos)/4 {
		r.err = fmt.Errorf("data too short for %s", field)
		return nil
	}
	list := make([][]byte, n)
	for i := range list {
		length := r.uint32(field + " element length")
		if length == ^uint32(0) {
			continue
		}
		list[i] = r.take(int(length), field)
	}
	if r.err != nil {
		return nil
	}
	return list
}
