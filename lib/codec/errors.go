package codec

import (
	"fmt"
	"reflect"
)

// DecodeError is returned when a byte sequence cannot be turned back into a value,
// either because it is truncated or because it is malformed.
type DecodeError struct {
	What string // the value or field being decoded
	Msg  string
	Err  error // underlying reader error, if any
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: cannot decode %s: %s: %v", e.What, e.Msg, e.Err)
	}
	return fmt.Sprintf("codec: cannot decode %s: %s", e.What, e.Msg)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErrorf(what string, format string, args ...any) *DecodeError {
	return &DecodeError{What: what, Msg: fmt.Sprintf(format, args...)}
}

// CodecNotFoundError is returned by Resolve when no codec is registered for a type.
type CodecNotFoundError struct {
	Type reflect.Type
}

func (e *CodecNotFoundError) Error() string {
	return fmt.Sprintf("codec: no codec registered for type %s", e.Type)
}
