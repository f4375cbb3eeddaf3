package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Version is the only JSON-RPC revision the /rpc endpoint speaks.
const Version = "2.0"

// Error codes carried in RPC error replies. These are the reserved JSON-RPC
// 2.0 values; the engine defines no codes of its own and maps domain errors
// onto the closest reserved one.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

// ErrMalformedRequest reports a body that is not a well-formed call envelope.
var ErrMalformedRequest = errors.New("malformed rpc request")

// Request is one call envelope. The endpoint does not accept batch arrays;
// hosts issue a single method per POST.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// Response is the reply envelope. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id,omitempty"`
}

// Error pairs a code with a human-readable message. Data carries
// method-specific detail, such as the offending method or field name.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// DecodeRequest reads one call envelope from body, checking the protocol
// version and that a method is named. Failures wrap ErrMalformedRequest.
func DecodeRequest(body io.Reader) (Request, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if req.JSONRPC != Version {
		return Request{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedRequest, req.JSONRPC)
	}
	if req.Method == "" {
		return Request{}, fmt.Errorf("%w: missing method", ErrMalformedRequest)
	}
	return req, nil
}

// WriteResult encodes a success reply for the given call ID.
func WriteResult(w http.ResponseWriter, id any, result any) {
	writeResponse(w, Response{JSONRPC: Version, Result: result, ID: id})
}

// WriteError encodes an error reply. Method-level failures still ship with
// HTTP 200; only transport concerns (auth, routing) use HTTP status codes.
func WriteError(w http.ResponseWriter, id any, code int, message string, data any) {
	writeResponse(w, Response{
		JSONRPC: Version,
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      id,
	})
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
