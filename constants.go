package jsonrpc

const (
	// Version is the protocol tag carried by every envelope.
	Version = "2.0"

	// ReservedMethodPrefix marks method names reserved for protocol extensions.
	ReservedMethodPrefix = "rpc."
)

// Transport statuses emitted by the pipeline.
const (
	StatusOK          = 200
	StatusNoContent   = 204
	StatusBadRequest  = 400
	StatusServerError = 500
)

// Error codes defined by JSON-RPC 2.0.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Implementation defined server errors, -32000 to -32099.
	CodeServerOverloaded = -32000
	CodeRequestTimeout   = -32001
)

const (
	ContentTypeJSON = "application/json"

	DefaultReadChunkSize = 64 * 1024
)
