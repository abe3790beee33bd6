package envelope

import "encoding/json"

// Request is an outbound or inbound JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is an outbound or inbound JSON-RPC 2.0 response. Exactly one of
// Result/Error is populated.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const jsonrpcVersion = "2.0"

// NewRequest builds a well-formed request envelope.
func NewRequest(id int64, method string, params interface{}) (Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, err
	}
	return Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: raw}, nil
}

// NewResult builds a success response envelope.
func NewResult(id int64, result interface{}) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, err
	}
	return Response{JSONRPC: jsonrpcVersion, ID: id, Result: raw}, nil
}

// NewError builds an error response envelope.
func NewError(id int64, code int, message string) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
}
