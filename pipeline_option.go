package jsonrpc

import (
	"net/http"

	"github.com/xizhibei/go-jsonrpc/telemetry"
)

type pipelineOptions struct {
	name          string
	logExchange   bool
	readChunkSize int
	bodyMethods   map[string]struct{}
	serializer    Serializer
	telemetry     telemetry.Telemetry
}

// PipelineOption is a functional option for configuring the pipeline.
type PipelineOption func(o *pipelineOptions)

// WithServerName sets the name reported in metrics labels. Defaults to a random uuid.
func WithServerName(name string) PipelineOption {
	return func(o *pipelineOptions) {
		o.name = name
	}
}

// WithLogExchange enables one info log line per exchange.
func WithLogExchange(logExchange bool) PipelineOption {
	return func(o *pipelineOptions) {
		o.logExchange = logExchange
	}
}

// WithReadChunkSize sets the size of the chunks the body is read in.
// Defaults to DefaultReadChunkSize.
func WithReadChunkSize(size int) PipelineOption {
	return func(o *pipelineOptions) {
		if size > 0 {
			o.readChunkSize = size
		}
	}
}

// WithBodyMethods sets the transport methods whose requests carry a body.
// Defaults to POST, PUT and PATCH; the body of any other method is treated as absent.
func WithBodyMethods(methods ...string) PipelineOption {
	return func(o *pipelineOptions) {
		o.bodyMethods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			o.bodyMethods[m] = struct{}{}
		}
	}
}

// WithSerializer replaces the default JSONSerializer.
func WithSerializer(s Serializer) PipelineOption {
	return func(o *pipelineOptions) {
		o.serializer = s
	}
}

// WithTelemetry sets the telemetry recording exchanges and dispatches.
func WithTelemetry(t telemetry.Telemetry) PipelineOption {
	return func(o *pipelineOptions) {
		o.telemetry = t
	}
}

func defaultBodyMethods() map[string]struct{} {
	return map[string]struct{}{
		http.MethodPost:  {},
		http.MethodPut:   {},
		http.MethodPatch: {},
	}
}
