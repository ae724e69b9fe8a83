// Package backend provides the transports used to reach a chain node: JSON-RPC
// over HTTP and the node's command line client. It carries no wallet logic and
// never retries; retry policy belongs to callers via IsTransientError.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout bounds a single RPC round trip.
const DefaultTimeout = 30 * time.Second

// Caller issues one RPC request against a node, optionally scoped to a wallet.
type Caller interface {
	Call(ctx context.Context, method string, params []interface{}, wallet string) (json.RawMessage, error)
}

// Config contains node RPC connection settings.
type Config struct {
	Host    string
	Port    int
	User    string
	Pass    string
	Timeout time.Duration // default DefaultTimeout
}

// ParseRPCAuth splits a "user:password" credential string.
func ParseRPCAuth(auth string) (user, pass string, err error) {
	if auth == "" {
		return "", "", nil
	}
	user, pass, ok := strings.Cut(auth, ":")
	if !ok {
		return "", "", fmt.Errorf("rpc auth must be user:password")
	}
	return user, pass, nil
}
