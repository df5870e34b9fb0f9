package jsonrpc

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/xizhibei/go-jsonrpc/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exchange is what a transport adapter supplies for one inbound request.
type Exchange struct {
	// Method is the transport verb, e.g. POST.
	Method string
	// Body is read once, never beyond ContentLength.
	Body io.Reader
	// ContentLength is the declared body length.
	ContentLength int64
}

// Header is one emitted transport header.
type Header struct {
	Name  string
	Value string
}

// Reply is what the pipeline hands back to the transport adapter.
// Headers are only set alongside a non-empty body.
type Reply struct {
	Status  int
	Headers []Header
	Body    []byte

	// ErrorResponses counts the JSON-RPC error responses in Body.
	ErrorResponses int
}

// Pipeline turns one exchange into one reply: read, deserialize, route,
// dispatch, assemble, serialize, emit. It keeps no per-exchange state and is
// safe for concurrent use.
type Pipeline struct {
	log        *zap.SugaredLogger
	dispatcher Dispatcher
	serializer Serializer
	telemetry  telemetry.Telemetry
	options    *pipelineOptions

	cbList      []OnAfterExchangeCallback
	afterExPool sync.Pool
}

// NewPipeline creates a pipeline dispatching requests to dispatcher.
func NewPipeline(dispatcher Dispatcher, options ...PipelineOption) *Pipeline {
	o := pipelineOptions{
		name:          uuid.New().String(),
		readChunkSize: DefaultReadChunkSize,
		bodyMethods:   defaultBodyMethods(),
	}

	for _, option := range options {
		option(&o)
	}

	if o.serializer == nil {
		o.serializer = NewJSONSerializer()
	}
	if o.telemetry == nil {
		o.telemetry = telemetry.Discard()
	}

	return &Pipeline{
		log:        zap.S().With("module", "jsonrpc.pipeline"),
		dispatcher: dispatcher,
		serializer: o.serializer,
		telemetry:  o.telemetry,
		options:    &o,
		afterExPool: sync.Pool{
			New: func() interface{} {
				return new(AfterExchangeEvent)
			},
		},
	}
}

// Handle processes one exchange. It never fails: fatal conditions are logged
// and reported as StatusServerError with an empty body.
func (p *Pipeline) Handle(ctx context.Context, ex *Exchange) *Reply {
	start := time.Now()
	ctx, span := p.telemetry.StartSpan(ctx, "jsonrpc.exchange",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("transport.method", ex.Method)),
	)
	defer span.End()

	reply, err := p.safeProcess(ctx, ex)
	if err != nil {
		p.log.Desugar().WithOptions(zap.AddStacktrace(zapcore.ErrorLevel)).Sugar().
			Errorf("Exchange aborted: %+v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		reply = &Reply{Status: StatusServerError}
	}
	span.SetAttributes(attribute.Int("status", reply.Status))

	duration := time.Since(start)
	p.telemetry.RecordExchange(ctx, duration, reply.Status, err)

	if p.options.logExchange {
		p.log.Infof("Exchange %s [%d] %d bytes (%v)", ex.Method, reply.Status, len(reply.Body), duration.Round(time.Millisecond))
	}

	evt := p.afterExPool.Get().(*AfterExchangeEvent)
	evt.Status = reply.Status
	evt.Duration = duration
	evt.Err = err
	evt.ErrorResponses = reply.ErrorResponses
	p.emitAfterExchange(evt)

	return reply
}

// safeProcess turns a panic anywhere below into a fatal error.
func (p *Pipeline) safeProcess(ctx context.Context, ex *Exchange) (reply *Reply, err error) {
	defer func() {
		if i := recover(); i != nil {
			reply = nil
			err = errors.Mark(errors.Newf("panic during exchange: %v", i), ErrProgramming)
		}
	}()
	return p.process(ctx, ex)
}

func (p *Pipeline) process(ctx context.Context, ex *Exchange) (*Reply, error) {
	body, err := p.readBody(ex)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return &Reply{Status: StatusBadRequest}, nil
	}

	raw, err := p.serializer.Deserialize(body)
	if err != nil {
		p.log.Debugf("Parse request body: %v", err)
		return p.serialize(NewErrorResponse(NullID(), ParseError(nil)).Wire(), 1)
	}

	if arr, ok := raw.([]any); ok && len(arr) > 0 {
		responses, err := p.processBatch(ctx, BatchRequestFromJSON(arr))
		if err != nil {
			return nil, err
		}
		if len(responses) == 0 {
			return &Reply{Status: StatusNoContent}, nil
		}
		return p.serialize(responses.Wire(), responses.ErrorCount())
	}

	req, verr := RequestFromJSON(raw)
	res, err := p.processElement(ctx, BatchElement{Request: req, Err: verr, raw: raw})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &Reply{Status: StatusNoContent}, nil
	}
	errs := 0
	if res.HasError() {
		errs = 1
	}
	return p.serialize(res.Wire(), errs)
}

func (p *Pipeline) readBody(ex *Exchange) ([]byte, error) {
	if _, ok := p.options.bodyMethods[ex.Method]; !ok {
		return nil, nil
	}
	if ex.Body == nil || ex.ContentLength <= 0 {
		return nil, nil
	}
	return ReadBody(ex.Body, ex.ContentLength, p.options.readChunkSize)
}

// ReadBody reads exactly n bytes from r in chunks of at most chunkSize bytes.
// A stream ending early yields an error marked ErrTransport.
func ReadBody(r io.Reader, n int64, chunkSize int) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultReadChunkSize
	}

	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for remaining := n; remaining > 0; {
		size := int64(chunkSize)
		if remaining < size {
			size = remaining
		}
		read, err := io.ReadFull(r, chunk[:size])
		buf.Write(chunk[:read])
		if err != nil {
			return nil, errors.Mark(
				errors.Wrapf(err, "read body: got %d of %d bytes", buf.Len(), n),
				ErrTransport,
			)
		}
		remaining -= int64(read)
	}
	return buf.Bytes(), nil
}

func (p *Pipeline) processBatch(ctx context.Context, batch BatchRequest) (BatchResponse, error) {
	responses := make(BatchResponse, 0, len(batch))
	for _, elem := range batch {
		res, err := p.processElement(ctx, elem)
		if err != nil {
			return nil, err
		}
		if res != nil {
			responses = append(responses, res)
		}
	}
	return responses, nil
}

// processElement handles one single request or batch element. It returns a
// nil response for notifications and a non-nil error only for fatal failures.
func (p *Pipeline) processElement(ctx context.Context, elem BatchElement) (*Response, error) {
	if elem.Err != nil {
		return NewErrorResponse(recoverID(elem.raw), elem.Err), nil
	}
	return p.dispatch(ctx, elem.Request)
}

func (p *Pipeline) dispatch(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "jsonrpc.dispatch "+req.Method(),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", req.Method()),
			attribute.Bool("rpc.jsonrpc.notification", req.IsNotification()),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := p.dispatcher.Dispatch(ctx, req.Method(), req.Args(), req.Kwargs())
	duration := time.Since(start)

	if e, ok := err.(*Error); ok && e == nil {
		// A nil *Error wrapped in a non-nil error interface
		err = nil
	}

	if err != nil {
		rpcErr, ok := AsError(err)
		if !ok {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, errors.Mark(errors.Wrapf(err, "dispatch %s", req.Method()), ErrProgramming)
		}

		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", rpcErr.Code))
		p.telemetry.RecordDispatch(ctx, duration, req.Method(), rpcErr.Code)
		if req.IsNotification() {
			return nil, nil
		}
		return NewErrorResponse(req.ID(), rpcErr), nil
	}

	p.telemetry.RecordDispatch(ctx, duration, req.Method(), 0)
	if req.IsNotification() {
		return nil, nil
	}
	return NewResultResponse(req.ID(), result), nil
}

// serialize encodes a response or batch wire value holding errs error
// responses. When that fails, a substitute INTERNAL_ERROR response is encoded
// instead; a second failure is fatal.
func (p *Pipeline) serialize(value any, errs int) (*Reply, error) {
	data, err := p.serializer.Serialize(value)
	if err != nil {
		p.log.Errorf("Serialize response: %v", err)

		substitute := NewErrorResponse(NullID(), InternalError("response not serializable"))
		data, err = p.serializer.Serialize(substitute.Wire())
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "serialize substitute response"), ErrSerialize)
		}
		errs = 1
	}

	return &Reply{
		Status: StatusOK,
		Headers: []Header{
			{Name: "Content-Type", Value: ContentTypeJSON},
			{Name: "Content-Length", Value: strconv.Itoa(len(data))},
		},
		Body:           data,
		ErrorResponses: errs,
	}, nil
}
