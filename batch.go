package jsonrpc

// BatchElement is one position of a batch: either a valid request or the
// validation error produced for it.
type BatchElement struct {
	Request *Request
	Err     *Error
	raw     any
}

// BatchRequest is an ordered sequence of independently validated elements.
type BatchRequest []BatchElement

// BatchRequestFromJSON validates every element of a raw array on its own.
// An invalid element becomes an error at its position and does not affect the others.
// Callers route empty arrays through the single-request path instead.
func BatchRequestFromJSON(raw []any) BatchRequest {
	batch := make(BatchRequest, 0, len(raw))
	for _, elem := range raw {
		req, err := RequestFromJSON(elem)
		batch = append(batch, BatchElement{Request: req, Err: err, raw: elem})
	}
	return batch
}

// Requests returns the valid requests of the batch in order.
func (b BatchRequest) Requests() []*Request {
	reqs := make([]*Request, 0, len(b))
	for _, e := range b {
		if e.Request != nil {
			reqs = append(reqs, e.Request)
		}
	}
	return reqs
}

// Errors returns the validation errors of the batch in order.
func (b BatchRequest) Errors() []*Error {
	errs := make([]*Error, 0)
	for _, e := range b {
		if e.Err != nil {
			errs = append(errs, e.Err)
		}
	}
	return errs
}

// BatchResponse holds one response per processed non-notification element.
// JSON-RPC does not correlate positions; this implementation keeps arrival order.
type BatchResponse []*Response

// Wire returns the array to hand to a Serializer.
func (b BatchResponse) Wire() []any {
	out := make([]any, 0, len(b))
	for _, r := range b {
		out = append(out, r.Wire())
	}
	return out
}

// ErrorCount returns how many responses carry an error.
func (b BatchResponse) ErrorCount() int {
	n := 0
	for _, r := range b {
		if r.HasError() {
			n++
		}
	}
	return n
}

// Find returns the response with the given id.
func (b BatchResponse) Find(id ID) (*Response, bool) {
	key := Canonical(id.Value())
	for _, r := range b {
		if r.id.kind == id.kind && Canonical(r.id.Value()) == key {
			return r, true
		}
	}
	return nil, false
}
