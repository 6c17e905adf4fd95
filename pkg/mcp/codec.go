package mcp

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// EncodeMessage serializes a JSON-RPC message to its wire format.
// This delegates to the MCP SDK's jsonrpc package.
func EncodeMessage(msg jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(msg)
}

// DecodeMessage deserializes JSON-RPC wire format data into a Message.
// It returns either a *jsonrpc.Request or *jsonrpc.Response based on the message content.
// This delegates to the MCP SDK's jsonrpc package.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	return jsonrpc.DecodeMessage(data)
}

// WrapMessage decodes raw JSON-RPC bytes and wraps them in a Message struct
// with the specified direction and current timestamp.
//
// If decoding fails, returns an error. For passthrough scenarios where
// the raw bytes should be preserved even on decode failure, callers can
// construct a Message manually.
func WrapMessage(raw []byte, dir Direction) (*Message, error) {
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return nil, err
	}

	return &Message{
		Raw:       raw,
		Direction: dir,
		Decoded:   decoded,
		Timestamp: time.Now(),
	}, nil
}

// WrapMessageTolerant is WrapMessage without the failure mode: governance
// decisions must run on every leg of the proxy flow, including a bodiless
// request or an upstream response that isn't JSON-RPC shaped, so this
// never returns an error.
//
// A request-direction message that fails to decode (or carries no body)
// wraps as an empty *jsonrpc.Request: no method, no params, so a tool-call
// guardrail naturally sees nothing to act on and a content guardrail sees
// nothing to scan. A response-direction message that fails to decode
// wraps its raw bytes as the *jsonrpc.Response result, so a content
// guardrail can still scan it even though it never went through the
// content[] envelope shape.
func WrapMessageTolerant(raw []byte, dir Direction) *Message {
	if decoded, err := jsonrpc.DecodeMessage(raw); err == nil {
		return &Message{
			Raw:       raw,
			Direction: dir,
			Decoded:   decoded,
			Timestamp: time.Now(),
		}
	}

	var decoded jsonrpc.Message
	if dir == ServerToClient {
		decoded = &jsonrpc.Response{Result: raw}
	} else {
		decoded = &jsonrpc.Request{}
	}

	return &Message{
		Raw:       raw,
		Direction: dir,
		Decoded:   decoded,
		Timestamp: time.Now(),
	}
}
