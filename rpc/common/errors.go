package common

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/evkv/lib/db"
)

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message. It is what a client returns for a failed request.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc: %s: %s", e.Code, e.Msg)
}

// Unwrap maps RetCClosed back to db.ErrClosed
func (e *Error) Unwrap() error {
	if e.Code == RetCClosed {
		return db.ErrClosed
	}
	return nil
}

// NewError creates a new Error
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// CodeOf returns the RetCode a server reports for err
func CodeOf(err error) RetCode {
	var rpcErr *Error
	switch {
	case err == nil:
		return RetCSuccess
	case errors.Is(err, db.ErrClosed):
		return RetCClosed
	case errors.As(err, &rpcErr):
		return rpcErr.Code
	default:
		return RetCInternalError
	}
}

// RetCode is the result code of a request
type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the server.
	RetCInvalidOperation                    // 3: Invalid operation, e.g. malformed arguments.
	RetCClosed                              // 4: The database of the shard is closed.
	RetCShardNotFound                       // 5: The server hosts no such shard.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "success"
	case RetCInternalError:
		return "internal error"
	case RetCUnsupportedOperation:
		return "unsupported operation"
	case RetCInvalidOperation:
		return "invalid operation"
	case RetCClosed:
		return "closed"
	case RetCShardNotFound:
		return "shard not found"
	default:
		return fmt.Sprintf("RetCode(%d)", uint64(c))
	}
}
