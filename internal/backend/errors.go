package backend

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcjson"
)

// Common errors
var (
	ErrBadResponse = errors.New("malformed rpc response")
)

// ConnectionError reports that the node could not be reached or did not answer.
type ConnectionError struct {
	Endpoint string
	Method   string
	Timeout  bool
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("rpc %s to %s: read timed out: %v", e.Method, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("rpc %s to %s: connection failed: %v", e.Method, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RPCError carries the error payload a node returned for a failed method.
type RPCError struct {
	Method string
	*btcjson.RPCError
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s, method: %s", e.Code, e.Message, e.Method)
}

func (e *RPCError) Unwrap() error { return e.RPCError }

// IsRPCCode reports whether err is a node error with the given code.
func IsRPCCode(err error, code btcjson.RPCErrorCode) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

// CLIError reports output on a CLI process's error stream.
type CLIError struct {
	Command string
	Stderr  string
}

func (e *CLIError) Error() string {
	return fmt.Sprintf("CLI error %s: %s", e.Command, e.Stderr)
}

// TimeoutError reports a CLI process that outlived its timeout.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Command, e.Timeout)
}

// TemporaryError marks a condition the caller expects to clear on retry.
type TemporaryError struct {
	Msg string
	Err error
}

// NewTemporaryError wraps err as explicitly transient.
func NewTemporaryError(msg string, err error) *TemporaryError {
	return &TemporaryError{Msg: msg, Err: err}
}

func (e *TemporaryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *TemporaryError) Unwrap() error { return e.Err }

var transientPatterns = []string{
	"read timed out",
	"no connection to daemon",
}

// IsTransientError reports whether err is safe to retry with backoff: either an
// explicit TemporaryError anywhere in the chain, or a message matching a known
// transient node condition.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var tmp *TemporaryError
	if errors.As(err, &tmp) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
