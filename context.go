package jsonrpc

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/atomic"
)

// Outcome is what a handler replied with.
// Result holds the success payload, Error holds the failure.
type Outcome struct {
	Result any
	Error  error
}

// Context is handed to a Handler for one dispatched call.
type Context interface {
	// Method returns the name of the called method.
	Method() string

	// Context returns the underlying context.Context.
	Context() context.Context

	// Args returns the positional params, nil unless params were an array.
	Args() []any

	// Kwargs returns the named params, nil unless params were an object.
	Kwargs() map[string]any

	// Bind decodes the params into request and validates it.
	// Named params map to fields by json tag, positional params map to
	// exported fields in declaration order. It returns an INVALID_PARAMS *Error.
	Bind(request any) error

	// Reply records the outcome. Only the first reply counts.
	// It returns true if this call recorded the outcome.
	Reply(out *Outcome) bool

	// ReplyOK replies with a success payload.
	ReplyOK(data any) bool

	// ReplyError replies with a failure. A *Error is sent to the caller;
	// any other error aborts the exchange.
	ReplyError(err error) bool

	// GetOutcome returns the recorded outcome, or nil before any reply.
	GetOutcome() *Outcome
}

// callContext is the Context implementation used by Registry.
type callContext struct {
	ctx       context.Context
	method    string
	args      []any
	kwargs    map[string]any
	codec     *JSONSerializer
	validator *validator.Validate

	out     *Outcome
	outMu   sync.Mutex
	replyed atomic.Bool
}

func newCallContext(ctx context.Context, method string, args []any, kwargs map[string]any, codec *JSONSerializer, v *validator.Validate) *callContext {
	return &callContext{
		ctx:       ctx,
		method:    method,
		args:      args,
		kwargs:    kwargs,
		codec:     codec,
		validator: v,
	}
}

func (c *callContext) Method() string { return c.method }

// Context returns the call context, or the background context when none was given.
func (c *callContext) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *callContext) Args() []any { return c.args }

func (c *callContext) Kwargs() map[string]any { return c.kwargs }

func (c *callContext) Bind(request any) error {
	rv := reflect.ValueOf(request)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Newf("bind target must be a non-nil pointer, got %T", request)
	}

	switch {
	case c.kwargs != nil:
		if err := c.decode(c.kwargs, request); err != nil {
			return InvalidParams(err.Error())
		}
	case c.args != nil:
		if err := c.bindPositional(rv.Elem()); err != nil {
			return InvalidParams(err.Error())
		}
	}

	if rv.Elem().Kind() == reflect.Struct && c.validator != nil {
		if err := c.validator.Struct(request); err != nil {
			return InvalidParams(err.Error())
		}
	}
	return nil
}

func (c *callContext) bindPositional(target reflect.Value) error {
	if target.Kind() != reflect.Struct {
		return c.decode(c.args, target.Addr().Interface())
	}

	fields := positionalFields(target.Type())
	if len(c.args) > len(fields) {
		return errors.Newf("too many params: got %d, want at most %d", len(c.args), len(fields))
	}
	for i, arg := range c.args {
		field := target.Field(fields[i])
		if err := c.decode(arg, field.Addr().Interface()); err != nil {
			return errors.Wrapf(err, "param %d", i)
		}
	}
	return nil
}

// positionalFields lists the exported, non-skipped fields of a struct type.
func positionalFields(t reflect.Type) []int {
	fields := make([]int, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name == "-" {
			continue
		}
		fields = append(fields, i)
	}
	return fields
}

func (c *callContext) decode(value any, target any) error {
	data, err := c.codec.Serialize(value)
	if err != nil {
		return err
	}
	return c.codec.Decode(data, target)
}

func (c *callContext) Reply(out *Outcome) bool {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	if !c.replyed.CompareAndSwap(false, true) {
		return false
	}
	c.out = out
	return true
}

func (c *callContext) ReplyOK(data any) bool {
	return c.Reply(&Outcome{Result: data})
}

func (c *callContext) ReplyError(err error) bool {
	return c.Reply(&Outcome{Error: err})
}

func (c *callContext) GetOutcome() *Outcome {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.out
}
