package jsonrpc

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type registryOptions struct {
	workerNum       int
	limiterDuration time.Duration
	limiterCount    int
	limiterReject   bool
	limiterEnabled  bool
	validator       *validator.Validate
}

// RegistryOption is a functional option for configuring the registry.
type RegistryOption func(o *registryOptions)

// WithWorkerNum sets the number of workers executing handlers.
// Defaults to the number of CPUs.
func WithWorkerNum(count int) RegistryOption {
	return func(o *registryOptions) {
		o.workerNum = count
	}
}

// WithLimiter enables a rate limiter allowing count calls per duration d.
// By default no limiter is applied.
func WithLimiter(d time.Duration, count int) RegistryOption {
	return func(o *registryOptions) {
		o.limiterEnabled = true
		o.limiterDuration = d
		o.limiterCount = count
	}
}

// WithLimiterReject makes a full limiter answer SERVER_OVERLOADED right away. This is the default.
func WithLimiterReject() RegistryOption {
	return func(o *registryOptions) {
		o.limiterReject = true
	}
}

// WithLimiterWait makes a full limiter block until a slot frees up or the
// call context is done.
func WithLimiterWait() RegistryOption {
	return func(o *registryOptions) {
		o.limiterReject = false
	}
}

// WithValidator sets the validator used by Context.Bind.
func WithValidator(v *validator.Validate) RegistryOption {
	return func(o *registryOptions) {
		o.validator = v
	}
}
