// Package httptransport drives a jsonrpc.Pipeline from net/http.
package httptransport

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	jsonrpc "github.com/xizhibei/go-jsonrpc"
	"github.com/xizhibei/go-jsonrpc/compressor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// DefaultMaxBodySize bounds request bodies, before and after decompression.
const DefaultMaxBodySize = 4 << 20

type options struct {
	compressor       *compressor.CompressorManager
	compressResponse bool
	minCompressSize  int
	maxBodySize      int64
}

// Option configures a Handler.
type Option func(o *options)

// WithCompressor sets the compressor used for request and response bodies.
func WithCompressor(c *compressor.CompressorManager) Option {
	return func(o *options) {
		o.compressor = c
	}
}

// WithResponseCompression compresses response bodies of at least minSize
// bytes with the coding negotiated from Accept-Encoding.
func WithResponseCompression(minSize int) Option {
	return func(o *options) {
		o.compressResponse = true
		o.minCompressSize = minSize
	}
}

// WithMaxBodySize sets the largest accepted request body in bytes, checked on
// the declared length and on the decompressed size. Larger bodies get 413.
// Defaults to DefaultMaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// Handler is an http.Handler serving one pipeline exchange per HTTP request.
type Handler struct {
	pipeline *jsonrpc.Pipeline
	options  *options
	log      *zap.SugaredLogger
}

// New creates a Handler.
func New(pipeline *jsonrpc.Pipeline, opts ...Option) *Handler {
	o := options{maxBodySize: DefaultMaxBodySize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.compressor == nil {
		o.compressor = compressor.NewCompressorManager()
	}

	return &Handler{
		pipeline: pipeline,
		options:  &o,
		log:      zap.S().With("module", "jsonrpc.http"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	ex, status := h.exchange(r)
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	reply := h.pipeline.Handle(ctx, ex)
	body := reply.Body

	if h.options.compressResponse && len(body) >= h.options.minCompressSize && len(body) > 0 {
		enc := compressor.Negotiate(r.Header.Get("Accept-Encoding"))
		if enc != compressor.ContentEncodingIdentity {
			compressed, err := h.options.compressor.Compress(enc, body)
			if err != nil {
				h.log.Errorf("Compress response with %s: %v", enc, err)
			} else {
				body = compressed
				w.Header().Set("Content-Encoding", enc.String())
				w.Header().Add("Vary", "Accept-Encoding")
			}
		}
	}

	for _, hdr := range reply.Headers {
		if hdr.Name == "Content-Length" {
			continue
		}
		w.Header().Set(hdr.Name, hdr.Value)
	}
	if len(body) > 0 {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}

	w.WriteHeader(reply.Status)
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			h.log.Warnf("Write response: %v", err)
		}
	}
}

// exchange builds the pipeline input. A non-zero status means the request
// was answered at the transport level already.
func (h *Handler) exchange(r *http.Request) (*jsonrpc.Exchange, int) {
	ex := &jsonrpc.Exchange{
		Method:        r.Method,
		Body:          r.Body,
		ContentLength: r.ContentLength,
	}

	enc, err := compressor.ParseContentEncoding(r.Header.Get("Content-Encoding"))
	if err != nil {
		h.log.Debugf("Reject request: %v", err)
		return nil, http.StatusUnsupportedMediaType
	}
	if r.ContentLength > h.options.maxBodySize {
		h.log.Debugf("Reject request: body of %d bytes", r.ContentLength)
		return nil, http.StatusRequestEntityTooLarge
	}
	if enc == compressor.ContentEncodingIdentity || r.ContentLength <= 0 {
		return ex, 0
	}

	raw, err := jsonrpc.ReadBody(r.Body, r.ContentLength, jsonrpc.DefaultReadChunkSize)
	if err != nil {
		h.log.Errorf("Read compressed body: %v", err)
		return nil, http.StatusInternalServerError
	}
	data, err := h.options.compressor.DecompressLimit(enc, raw, h.options.maxBodySize)
	if errors.Is(err, compressor.ErrTooLarge) {
		h.log.Debugf("Reject request: %v", err)
		return nil, http.StatusRequestEntityTooLarge
	}
	if err != nil {
		h.log.Debugf("Decompress body: %v", err)
		return nil, http.StatusBadRequest
	}

	ex.Body = bytes.NewReader(data)
	ex.ContentLength = int64(len(data))
	return ex, 0
}
