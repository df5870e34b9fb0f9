package jsonrpc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricLabels are the label names RegisterMetrics fills in.
var MetricLabels = []string{"name", "status"}

// AfterExchangeEvent describes a finished exchange.
// Status is the emitted transport status, Err the fatal error if any.
type AfterExchangeEvent struct {
	Status   int
	Duration time.Duration
	Err      error

	// ErrorResponses counts the JSON-RPC error responses sent back.
	ErrorResponses int
}

// OnAfterExchangeCallback is called after every exchange. The event is
// recycled once the callback returns and must not be retained.
type OnAfterExchangeCallback func(e *AfterExchangeEvent)

// OnAfterExchange registers a callback executed after each exchange.
// Callbacks must be registered before the pipeline starts serving.
func (p *Pipeline) OnAfterExchange(cb OnAfterExchangeCallback) {
	p.cbList = append(p.cbList, cb)
}

func (p *Pipeline) emitAfterExchange(e *AfterExchangeEvent) {
	for _, cb := range p.cbList {
		cb(e)
	}
	p.afterExPool.Put(e)
}

// RegisterMetrics records exchange durations in responseTime. errorCount
// counts exchanges with a client or server error status, plus every JSON-RPC
// error response sent with a success status.
// Both vectors must be declared with MetricLabels; either may be nil.
func (p *Pipeline) RegisterMetrics(responseTime *prometheus.HistogramVec, errorCount *prometheus.GaugeVec) {
	p.OnAfterExchange(func(e *AfterExchangeEvent) {
		labels := prometheus.Labels{
			"name":   p.options.name,
			"status": strconv.Itoa(e.Status),
		}

		if responseTime != nil {
			responseTime.
				With(labels).
				Observe(e.Duration.Seconds())
		}

		if errorCount == nil {
			return
		}
		if e.Status >= StatusBadRequest {
			errorCount.
				With(labels).
				Inc()
		} else if e.ErrorResponses > 0 {
			errorCount.
				With(labels).
				Add(float64(e.ErrorResponses))
		}
	})
}
