// Package directory implements the TLS-wrapped relay registry (§6):
// one request-response exchange per connection, authenticated by a
// shared secret, holding an in-memory map of socket address to
// NodeInfo that is wiped on restart.
package directory

import (
	"encoding/json"
	"fmt"

	"github.com/JGiraldo29/giralnet/descriptor"
)

// RequestKind tags the two directory request shapes (§6).
type RequestKind string

const (
	RequestRegister RequestKind = "register"
	RequestGetNodes RequestKind = "get_nodes"
)

// Request is the single request a client sends per connection.
type Request struct {
	Kind   RequestKind       `json:"kind"`
	Info   *descriptor.NodeInfo `json:"info,omitempty"`
	Secret string            `json:"secret"`
}

// ResponseKind tags the two directory response shapes (§6).
type ResponseKind string

const (
	ResponseAck      ResponseKind = "ack"
	ResponseNodeList ResponseKind = "node_list"
)

// Response is the single response the directory sends per connection.
type Response struct {
	Kind  ResponseKind         `json:"kind"`
	Nodes []descriptor.NodeInfo `json:"nodes,omitempty"`
}

func encodeRequest(r Request) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode directory request: %w", err)
	}
	return data, nil
}

func decodeRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("decode directory request: %w", err)
	}
	return r, nil
}

func encodeResponse(r Response) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode directory response: %w", err)
	}
	return data, nil
}

func decodeResponse(data []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("decode directory response: %w", err)
	}
	return r, nil
}
