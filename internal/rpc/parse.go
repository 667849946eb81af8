package rpc

import (
	"bytes"
	"encoding/json"
)

// Request is a parsed, shape-checked inbound message. The concrete type is
// one of Initialize, Ping, ListTools, CallTool or Notification.
type Request interface {
	RequestID() json.RawMessage
	MethodName() string
}

// Initialize is the MCP handshake request.
type Initialize struct {
	ID              json.RawMessage
	ProtocolVersion string
	ClientInfo      Implementation
}

// Ping is a liveness request.
type Ping struct {
	ID json.RawMessage
}

// ListTools requests the tool catalog.
type ListTools struct {
	ID json.RawMessage
}

// CallTool invokes one tool. Arguments is guaranteed to be a JSON object.
type CallTool struct {
	ID        json.RawMessage
	Name      string
	Arguments json.RawMessage
}

// Notification is any message without an id. It never gets a response.
type Notification struct {
	Method string
	Params json.RawMessage
}

func (r Initialize) RequestID() json.RawMessage   { return r.ID }
func (r Ping) RequestID() json.RawMessage         { return r.ID }
func (r ListTools) RequestID() json.RawMessage    { return r.ID }
func (r CallTool) RequestID() json.RawMessage     { return r.ID }
func (r Notification) RequestID() json.RawMessage { return nil }

func (Initialize) MethodName() string     { return MethodInitialize }
func (Ping) MethodName() string           { return MethodPing }
func (ListTools) MethodName() string      { return MethodToolsList }
func (CallTool) MethodName() string       { return MethodToolsCall }
func (n Notification) MethodName() string { return n.Method }

// Parse validates the envelope shape before touching any field and returns
// a typed request. On failure the returned ID is whatever could be recovered
// from the envelope (nil when none), so the error response can echo it.
func Parse(raw []byte) (Request, json.RawMessage, *Error) {
	raw = bytes.TrimSpace(raw)
	if !json.Valid(raw) {
		return nil, nil, ErrParse()
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, nil, ErrInvalidRequest("envelope must be a JSON object")
	}

	rawID, hasID := fields["id"]
	var id json.RawMessage
	if hasID {
		if !validID(rawID) {
			return nil, nil, ErrInvalidRequest("id must be a string or number")
		}
		id = rawID
	}

	var version string
	if err := json.Unmarshal(fields["jsonrpc"], &version); err != nil || version != Version {
		return nil, id, ErrInvalidRequest(`jsonrpc must be "2.0"`)
	}

	var method string
	if err := json.Unmarshal(fields["method"], &method); err != nil || method == "" {
		return nil, id, ErrInvalidRequest("method must be a non-empty string")
	}

	params, ok := objectOrAbsent(fields["params"])
	if !ok {
		return nil, id, ErrInvalidRequest("params must be an object")
	}

	if !hasID {
		return Notification{Method: method, Params: params}, nil, nil
	}

	switch method {
	case MethodInitialize:
		req := Initialize{ID: id}
		if params != nil {
			var p struct {
				ProtocolVersion string         `json:"protocolVersion"`
				ClientInfo      Implementation `json:"clientInfo"`
			}
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, id, ErrInvalidParams("invalid initialize params")
			}
			req.ProtocolVersion = p.ProtocolVersion
			req.ClientInfo = p.ClientInfo
		}
		return req, id, nil
	case MethodPing:
		return Ping{ID: id}, id, nil
	case MethodToolsList:
		return ListTools{ID: id}, id, nil
	case MethodToolsCall:
		return parseCallTool(id, params)
	default:
		return nil, id, ErrMethodNotFound(method)
	}
}

func parseCallTool(id, params json.RawMessage) (Request, json.RawMessage, *Error) {
	if params == nil {
		return nil, id, ErrInvalidRequest("tools/call requires params")
	}
	var p map[string]json.RawMessage
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, id, ErrInvalidRequest("params must be an object")
	}

	var name string
	if err := json.Unmarshal(p["name"], &name); err != nil || name == "" {
		return nil, id, ErrInvalidRequest("params.name must be a non-empty string")
	}
	args, ok := objectOrAbsent(p["arguments"])
	if !ok || args == nil {
		return nil, id, ErrInvalidRequest("params.arguments must be an object")
	}
	return CallTool{ID: id, Name: name, Arguments: args}, id, nil
}

// ExtractID pulls a usable id out of raw bytes without validating anything
// else. It is used when a message is rejected before it is parsed.
func ExtractID(raw []byte) json.RawMessage {
	var envelope struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	if !validID(envelope.ID) {
		return nil
	}
	return envelope.ID
}

func validID(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case '"':
		var s string
		return json.Unmarshal(raw, &s) == nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		return json.Unmarshal(raw, &n) == nil
	}
	return false
}

// objectOrAbsent accepts a missing member, null, or a JSON object. It
// returns nil params for the first two.
func objectOrAbsent(raw json.RawMessage) (json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, true
	}
	if raw[0] != '{' {
		return nil, false
	}
	return raw, true
}
