package internal

import "fmt"

// ResultCode is stored in sm.Result.Value for every applied command
type ResultCode uint64

const (
	ResultSuccess          ResultCode = iota // Command applied.
	ResultInternalError                      // The database returned an error.
	ResultInvalidOperation                   // Malformed or unknown command.
	ResultClosed                             // The database of the replica is closed.
)

func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "Success"
	case ResultInternalError:
		return "InternalError"
	case ResultInvalidOperation:
		return "InvalidOperation"
	case ResultClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// EncodeFound encodes the (value, found) result of Swap and SetIfAbsent:
// one byte found flag followed by the value.
func EncodeFound(value []byte, found bool) []byte {
	if !found {
		return []byte{0}
	}
	out := make([]byte, 1+len(value))
	out[0] = 1
	copy(out[1:], value)
	return out
}

// DecodeFound reverses EncodeFound. A found value is never nil.
func DecodeFound(data []byte) ([]byte, bool, error) {
	if len(data) == 0 {
		return nil, false, fmt.Errorf("empty result")
	}
	if data[0] == 0 {
		return nil, false, nil
	}
	value := make([]byte, len(data)-1)
	copy(value, data[1:])
	return value, true, nil
}
