package jsonrpc

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// ParamsKind tells how a request carries its parameters.
type ParamsKind uint8

const (
	ParamsNone ParamsKind = iota
	ParamsPositional
	ParamsNamed
)

var requestKeys = map[string]struct{}{
	"jsonrpc": {},
	"method":  {},
	"params":  {},
	"id":      {},
}

// envelope holds the scalar members of a request checked by the validator.
type envelope struct {
	JSONRPC string `validate:"eq=2.0"`
	Method  string `validate:"required,startsnotwith=rpc."`
}

var shapeValidator = validator.New()

// Request is a validated JSON-RPC request. It is immutable once constructed.
type Request struct {
	method string
	kind   ParamsKind
	args   []any
	kwargs map[string]any
	id     ID
}

// NewRequest creates a request without params.
// An undefined id makes the request a notification.
func NewRequest(method string, id ID) (*Request, error) {
	return newRequest(method, ParamsNone, nil, nil, id)
}

// NewPositionalRequest creates a request whose params are an array.
func NewPositionalRequest(method string, args []any, id ID) (*Request, error) {
	if args == nil {
		args = []any{}
	}
	return newRequest(method, ParamsPositional, args, nil, id)
}

// NewNamedRequest creates a request whose params are an object.
func NewNamedRequest(method string, kwargs map[string]any, id ID) (*Request, error) {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return newRequest(method, ParamsNamed, nil, kwargs, id)
}

func newRequest(method string, kind ParamsKind, args []any, kwargs map[string]any, id ID) (*Request, error) {
	if err := shapeValidator.Struct(envelope{JSONRPC: Version, Method: method}); err != nil {
		return nil, errors.Wrapf(err, "invalid method %q", method)
	}
	if id.IsNull() {
		return nil, errors.New("request id must be a string or a number")
	}
	return &Request{method: method, kind: kind, args: args, kwargs: kwargs, id: id}, nil
}

// RequestFromJSON matches a deserialized JSON value against the valid request
// shapes. It never fails loudly: any violation yields an INVALID_REQUEST error
// carrying the offending raw value.
func RequestFromJSON(raw any) (*Request, *Error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, InvalidRequest(raw)
	}

	for k := range obj {
		if _, ok := requestKeys[k]; !ok {
			return nil, InvalidRequest(raw)
		}
	}

	tag, _ := obj["jsonrpc"].(string)
	method, ok := obj["method"].(string)
	if !ok {
		return nil, InvalidRequest(raw)
	}
	if err := shapeValidator.Struct(envelope{JSONRPC: tag, Method: method}); err != nil {
		return nil, InvalidRequest(raw)
	}

	req := &Request{method: method}

	if params, present := obj["params"]; present {
		switch p := params.(type) {
		case []any:
			req.kind = ParamsPositional
			req.args = p
		case map[string]any:
			req.kind = ParamsNamed
			req.kwargs = p
		default:
			return nil, InvalidRequest(raw)
		}
	}

	if rawID, present := obj["id"]; present {
		id, ok := idFromRaw(rawID)
		if !ok {
			return nil, InvalidRequest(raw)
		}
		req.id = id
	}

	return req, nil
}

// recoverID returns the id of a malformed request object when it is a string
// or a number, and null otherwise.
func recoverID(raw any) ID {
	obj, ok := raw.(map[string]any)
	if !ok {
		return NullID()
	}
	if id, ok := idFromRaw(obj["id"]); ok {
		return id
	}
	return NullID()
}

func (r *Request) Method() string { return r.method }

func (r *Request) ID() ID { return r.id }

func (r *Request) ParamsKind() ParamsKind { return r.kind }

// Args returns the positional params, or nil when params are absent or named.
func (r *Request) Args() []any { return r.args }

// Kwargs returns the named params, or nil when params are absent or positional.
func (r *Request) Kwargs() map[string]any { return r.kwargs }

// IsNotification reports whether the request has no id and therefore never
// produces a response.
func (r *Request) IsNotification() bool { return r.id.IsUndefined() }

// Wire returns the structured wire form of the request.
func (r *Request) Wire() map[string]any {
	w := map[string]any{
		"jsonrpc": Version,
		"method":  r.method,
	}
	switch r.kind {
	case ParamsPositional:
		w["params"] = r.args
	case ParamsNamed:
		w["params"] = r.kwargs
	}
	if !r.id.IsUndefined() {
		w["id"] = r.id.Value()
	}
	return w
}

// Key returns the canonical identity of the request.
func (r *Request) Key() string {
	return Canonical(r.Wire())
}

// Equal reports whether two requests carry the same method, params and id.
func (r *Request) Equal(o *Request) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Key() == o.Key()
}

func (r *Request) String() string {
	return "request " + r.method + " id=" + r.id.String()
}
