package jsonrpc

//go:generate mockgen -source=dispatcher.go -destination=mock/mock_dispatcher.go

import "context"

// Dispatcher resolves a method name to application logic and invokes it.
//
// A protocol-domain failure (unknown method, bad params, ...) is reported by
// returning a *Error, which the pipeline sends back verbatim. Any other error
// is treated as a bug: the pipeline aborts the exchange instead of wrapping it
// into a JSON-RPC error.
type Dispatcher interface {
	Dispatch(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error) {
	return f(ctx, method, args, kwargs)
}
