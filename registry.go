package jsonrpc

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Jeffail/tunny"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// DefaultHandlerTimeout bounds handlers registered without a timeout.
const DefaultHandlerTimeout = 30 * time.Second

// Handler represents a JSON-RPC method.
// Method is the function executed for each call; it must reply through the Context.
// Timeout is the maximum duration allowed for a call, DefaultHandlerTimeout when zero.
type Handler struct {
	Method  func(c Context)
	Timeout time.Duration
}

// Registry is the default Dispatcher: a method table whose handlers run on a
// bounded worker pool.
type Registry struct {
	log        *zap.SugaredLogger
	handlerMap map[string]*Handler
	handlerMu  sync.RWMutex

	options    *registryOptions
	codec      *JSONSerializer
	workerPool *tunny.Pool
	limiter    *rate.Limiter
}

// NewRegistry creates a registry with the provided options.
func NewRegistry(options ...RegistryOption) *Registry {
	o := registryOptions{
		workerNum:     runtime.NumCPU(),
		limiterReject: true,
	}

	for _, option := range options {
		option(&o)
	}

	if o.validator == nil {
		o.validator = validator.New()
	}

	r := Registry{
		log:        zap.S().With("module", "jsonrpc.registry"),
		handlerMap: make(map[string]*Handler),
		options:    &o,
		codec:      NewJSONSerializer(),
		workerPool: tunny.NewCallback(o.workerNum),
	}

	if o.limiterEnabled {
		r.limiter = rate.NewLimiter(rate.Every(o.limiterDuration), o.limiterCount)
	}

	return &r
}

// Register registers a handler for a method. A method registered twice is overridden.
// Names starting with "rpc." are reserved and refused.
func (r *Registry) Register(method string, hdl *Handler) {
	if method == "" || strings.HasPrefix(method, ReservedMethodPrefix) {
		r.log.Errorf("Method %q is reserved or empty, not registered", method)
		return
	}

	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()

	if _, ok := r.handlerMap[method]; ok {
		r.log.Warnf("Method %s already registered, will override", method)
	}

	r.handlerMap[method] = hdl
	r.log.Debugf("Method %s registered", method)
}

// Methods returns the registered method names in sorted order.
func (r *Registry) Methods() []string {
	r.handlerMu.RLock()
	defer r.handlerMu.RUnlock()

	names := make([]string, 0, len(r.handlerMap))
	for name := range r.handlerMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(method string) (*Handler, bool) {
	r.handlerMu.RLock()
	defer r.handlerMu.RUnlock()
	hdl, ok := r.handlerMap[method]
	return hdl, ok
}

// Dispatch implements Dispatcher. It runs the handler on the worker pool and
// waits for its reply.
func (r *Registry) Dispatch(ctx context.Context, method string, args []any, kwargs map[string]any) (any, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}

	hdl, ok := r.lookup(method)
	if !ok {
		return nil, MethodNotFound(method)
	}

	timeout := hdl.Timeout
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}

	c := newCallContext(ctx, method, args, kwargs, r.codec, r.options.validator)

	_, err := r.workerPool.ProcessTimed(func() {
		defer func() {
			if i := recover(); i != nil {
				err := errors.Mark(errors.Newf("panic in method %s: %v", method, i), ErrProgramming)
				r.log.Desugar().WithOptions(zap.AddStacktrace(zapcore.ErrorLevel)).Sugar().Error(err)
				c.ReplyError(err)
			}
		}()

		hdl.Method(c)

		// A successful reply here means the method never replied.
		if c.ReplyError(errors.Mark(errors.Wrapf(ErrNoReply, "method %s", method), ErrProgramming)) {
			r.log.Warnf("Method %s no reply", method)
		}
	}, timeout)

	if err != nil {
		if errors.Is(err, tunny.ErrJobTimedOut) {
			c.ReplyError(NewErrorWithData(CodeRequestTimeout, "", timeout.String()))
		} else {
			c.ReplyError(errors.Mark(errors.Wrap(err, "worker pool"), ErrProgramming))
		}
	}

	out := c.GetOutcome()
	if out.Error != nil {
		if rpcErr, ok := AsError(out.Error); ok {
			return nil, rpcErr
		}
		return nil, out.Error
	}
	return out.Result, nil
}

func (r *Registry) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	if r.options.limiterReject {
		if !r.limiter.Allow() {
			return NewError(CodeServerOverloaded, "")
		}
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return NewErrorWithData(CodeRequestTimeout, "", err.Error())
	}
	return nil
}

// Close stops the worker pool. Dispatching after Close is a programming error.
func (r *Registry) Close() error {
	r.workerPool.Close()
	return nil
}
