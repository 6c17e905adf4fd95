package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// ToolName returns params.name for a tools/call request, or the empty
// string if this is not a tools/call request or the field is absent.
func (m *Message) ToolName() string {
	if m.Method() != "tools/call" {
		return ""
	}
	params := m.ParseParams()
	if params == nil {
		return ""
	}
	name, _ := params["name"].(string)
	return name
}

// ParamsValue unmarshals the request params into a generic value suitable
// for recursive inspection or redaction (map[string]interface{}, []interface{},
// or a scalar). Returns nil if this is not a request or Params is empty.
func (m *Message) ParamsValue() (interface{}, error) {
	req := m.Request()
	if req == nil || len(req.Params) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(req.Params, &v); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return v, nil
}

// ResultValue unmarshals the response result into a generic value suitable
// for recursive inspection or redaction. Returns nil if this is not a
// response, the response carries an error, or Result is empty.
func (m *Message) ResultValue() (interface{}, error) {
	resp := m.Response()
	if resp == nil || resp.Error != nil || len(resp.Result) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(resp.Result, &v); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return v, nil
}

// WithParams returns a copy of the message with the request's params
// replaced by v. The original message (and its Raw bytes) are untouched.
// Returns an error if this is not a request message.
func (m *Message) WithParams(v interface{}) (*Message, error) {
	req := m.Request()
	if req == nil {
		return nil, fmt.Errorf("cannot replace params: not a request message")
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal replacement params: %w", err)
	}
	newReq := &jsonrpc.Request{
		Method: req.Method,
		Params: encoded,
		ID:     req.ID,
	}
	raw, err := jsonrpc.EncodeMessage(newReq)
	if err != nil {
		return nil, fmt.Errorf("encode modified request: %w", err)
	}
	return &Message{
		Raw:       raw,
		Direction: m.Direction,
		Decoded:   newReq,
		Timestamp: m.Timestamp,
	}, nil
}

// WithResult returns a copy of the message with the response's result
// replaced by v. The original message (and its Raw bytes) are untouched.
// Returns an error if this is not a (non-error) response message.
func (m *Message) WithResult(v interface{}) (*Message, error) {
	resp := m.Response()
	if resp == nil {
		return nil, fmt.Errorf("cannot replace result: not a response message")
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal replacement result: %w", err)
	}
	newResp := &jsonrpc.Response{
		ID:     resp.ID,
		Result: encoded,
	}
	raw, err := jsonrpc.EncodeMessage(newResp)
	if err != nil {
		return nil, fmt.Errorf("encode modified response: %w", err)
	}
	return &Message{
		Raw:       raw,
		Direction: m.Direction,
		Decoded:   newResp,
		Timestamp: m.Timestamp,
	}, nil
}

// ScanText returns the text content this message exposes for keyword/regex/PII
// scanning, per the "content to scan" rule: for requests, the JSON-serialised
// params; for responses, the text of any result.content[] items of type
// "text" concatenated, else the JSON-serialised result.
func (m *Message) ScanText(dir Direction) (string, error) {
	if dir == ClientToServer {
		v, err := m.ParamsValue()
		if err != nil || v == nil {
			return "", err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	v, err := m.ResultValue()
	if err != nil || v == nil {
		return "", err
	}
	if obj, ok := v.(map[string]interface{}); ok {
		if content, ok := obj["content"].([]interface{}); ok {
			var text string
			for _, item := range content {
				entry, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				if t, _ := entry["type"].(string); t != "text" {
					continue
				}
				if s, ok := entry["text"].(string); ok {
					text += s
				}
			}
			return text, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
