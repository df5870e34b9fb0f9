package jsonrpc

// Response is the outcome of one request. Exactly one of result and error is set.
type Response struct {
	id        ID
	result    any
	err       *Error
	hasResult bool
}

type wireResult struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result"`
	ID      *ID    `json:"id,omitempty"`
}

type wireFailure struct {
	JSONRPC string `json:"jsonrpc"`
	Error   *Error `json:"error"`
	ID      *ID    `json:"id,omitempty"`
}

// NewResultResponse creates a success response. A nil result is a valid
// body and is written as null.
func NewResultResponse(id ID, result any) *Response {
	return &Response{id: id, result: result, hasResult: true}
}

// NewErrorResponse creates a failure response.
// It panics when err is nil, as a response must carry a body or an error.
func NewErrorResponse(id ID, err *Error) *Response {
	if err == nil {
		panic("jsonrpc: error response without an error")
	}
	return &Response{id: id, err: err}
}

func (r *Response) ID() ID { return r.id }

func (r *Response) HasResult() bool { return r.hasResult }

func (r *Response) HasError() bool { return r.err != nil }

func (r *Response) Result() any { return r.result }

func (r *Response) Error() *Error { return r.err }

// Wire returns the value to hand to a Serializer. Its fields encode in
// envelope order: jsonrpc, result or error, id.
func (r *Response) Wire() any {
	if r.err != nil {
		return &wireFailure{JSONRPC: Version, Error: r.err, ID: r.id.wire()}
	}
	return &wireResult{JSONRPC: Version, Result: r.result, ID: r.id.wire()}
}

// Key returns the canonical identity of the response.
func (r *Response) Key() string {
	w := map[string]any{"jsonrpc": Version}
	if r.err != nil {
		e := map[string]any{"code": r.err.Code, "message": r.err.Message}
		if r.err.Data != nil {
			e["data"] = r.err.Data
		}
		w["error"] = e
	} else {
		w["result"] = r.result
	}
	if !r.id.IsUndefined() {
		w["id"] = r.id.Value()
	}
	return Canonical(w)
}

// Equal reports whether two responses carry the same outcome and id.
func (r *Response) Equal(o *Response) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Key() == o.Key()
}
