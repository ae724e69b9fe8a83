package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcjson"
)

// JSONRPCBackend talks to a Bitcoin Core style node over HTTP JSON-RPC.
// It is safe for concurrent use; each call is an independent HTTP request.
type JSONRPCBackend struct {
	endpoint   string
	rpcUser    string
	rpcPass    string
	httpClient *http.Client
	requestID  atomic.Uint64
}

// NewJSONRPCBackend creates a new JSON-RPC backend.
func NewJSONRPCBackend(cfg *Config) *JSONRPCBackend {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &JSONRPCBackend{
		endpoint: "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
		rpcUser:  cfg.User,
		rpcPass:  cfg.Pass,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Call issues method with params. A non-empty wallet routes the request to
// /wallet/<name> so multi-wallet nodes answer for that wallet.
func (j *JSONRPCBackend) Call(ctx context.Context, method string, params []interface{}, wallet string) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	id := j.requestID.Add(1)

	request := map[string]interface{}{
		"jsonrpc": "1.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	target := j.endpoint
	if wallet != "" {
		target += "/wallet/" + url.PathEscape(wallet)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if j.rpcUser != "" {
		req.SetBasicAuth(j.rpcUser, j.rpcPass)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, j.connectionError(method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, j.connectionError(method, err)
	}

	// Nodes answer failed methods with HTTP 500 and a JSON error body, so the
	// status code alone does not decide success.
	var response struct {
		Result json.RawMessage   `json:"result"`
		Error  *btcjson.RPCError `json:"error"`
		ID     json.RawMessage   `json:"id"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: %s HTTP %d: %v", ErrBadResponse, method, resp.StatusCode, err)
	}

	if response.Error != nil {
		return nil, &RPCError{Method: method, RPCError: response.Error}
	}

	return response.Result, nil
}

func (j *JSONRPCBackend) connectionError(method string, err error) error {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	return &ConnectionError{
		Endpoint: j.endpoint,
		Method:   method,
		Timeout:  timeout,
		Err:      err,
	}
}

// Ensure JSONRPCBackend implements Caller
var _ Caller = (*JSONRPCBackend)(nil)
