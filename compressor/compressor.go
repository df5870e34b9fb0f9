package compressor

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/cockroachdb/errors"
)

// ContentEncoding is an HTTP content coding.
type ContentEncoding int

const (
	ContentEncodingIdentity ContentEncoding = iota
	ContentEncodingGzip
	ContentEncodingDeflate
	ContentEncodingBrotli
)

var (
	ErrUnknownContentEncoding = errors.New("[JSONRPC] unknown content encoding")

	// ErrTooLarge is returned when decoded data exceeds the allowed size.
	ErrTooLarge = errors.New("[JSONRPC] decompressed data too large")
)

var encodingNames = map[ContentEncoding]string{
	ContentEncodingIdentity: "identity",
	ContentEncodingGzip:     "gzip",
	ContentEncodingDeflate:  "deflate",
	ContentEncodingBrotli:   "br",
}

// String returns the token used in Content-Encoding headers.
func (e ContentEncoding) String() string {
	return encodingNames[e]
}

// ParseContentEncoding parses a Content-Encoding header value.
// An empty value is identity; stacked codings are not supported.
func ParseContentEncoding(value string) (ContentEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "identity":
		return ContentEncodingIdentity, nil
	case "gzip", "x-gzip":
		return ContentEncodingGzip, nil
	case "deflate":
		return ContentEncodingDeflate, nil
	case "br":
		return ContentEncodingBrotli, nil
	}
	return ContentEncodingIdentity, errors.Wrapf(ErrUnknownContentEncoding, "%q", value)
}

// Negotiate picks the preferred supported coding from an Accept-Encoding
// header: br, then gzip, then deflate. Codings with q=0 are skipped.
// It returns identity when nothing matches.
func Negotiate(acceptEncoding string) ContentEncoding {
	accepted := map[string]bool{}
	for _, part := range strings.Split(acceptEncoding, ",") {
		token, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if q := strings.ReplaceAll(params, " ", ""); q == "q=0" || q == "q=0.0" || q == "q=0.00" || q == "q=0.000" {
			continue
		}
		accepted[strings.ToLower(strings.TrimSpace(token))] = true
	}

	for _, e := range []ContentEncoding{ContentEncodingBrotli, ContentEncodingGzip, ContentEncodingDeflate} {
		if accepted[e.String()] {
			return e
		}
	}
	return ContentEncodingIdentity
}

// CompressorManager compresses and decompresses payloads using pooled writers.
type CompressorManager struct {
	byteReaderPool   sync.Pool
	bufferPool       sync.Pool
	gzipWriterPool   sync.Pool
	zlibWriterPool   sync.Pool
	brotliWriterPool sync.Pool
}

func NewCompressorManager() *CompressorManager {
	return &CompressorManager{
		byteReaderPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewReader(nil)
			},
		},
		gzipWriterPool: sync.Pool{
			New: func() interface{} {
				return gzip.NewWriter(nil)
			},
		},
		zlibWriterPool: sync.Pool{
			New: func() interface{} {
				return zlib.NewWriter(nil)
			},
		},
		brotliWriterPool: sync.Pool{
			New: func() interface{} {
				return brotli.NewWriter(nil)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Compress encodes data with the given coding. The returned slice is owned by the caller.
func (c *CompressorManager) Compress(tp ContentEncoding, data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	switch tp {
	case ContentEncodingIdentity:
		return data, nil
	case ContentEncodingGzip:
		w := c.gzipWriterPool.Get().(*gzip.Writer)
		defer c.gzipWriterPool.Put(w)
		return c.compress(w, w.Reset, data)
	case ContentEncodingDeflate:
		w := c.zlibWriterPool.Get().(*zlib.Writer)
		defer c.zlibWriterPool.Put(w)
		return c.compress(w, w.Reset, data)
	case ContentEncodingBrotli:
		w := c.brotliWriterPool.Get().(*brotli.Writer)
		defer c.brotliWriterPool.Put(w)
		return c.compress(w, w.Reset, data)
	}
	return nil, ErrUnknownContentEncoding
}

func (c *CompressorManager) compress(w io.WriteCloser, reset func(io.Writer), data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	defer c.bufferPool.Put(buf)

	buf.Reset()
	reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "compress")
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Decompress decodes data encoded with the given coding.
func (c *CompressorManager) Decompress(tp ContentEncoding, data []byte) ([]byte, error) {
	return c.DecompressLimit(tp, data, 0)
}

// DecompressLimit decodes data like Decompress but stops once the output
// exceeds limit bytes and returns ErrTooLarge. A limit of zero or less disables the check.
func (c *CompressorManager) DecompressLimit(tp ContentEncoding, data []byte, limit int64) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	byteReader := c.byteReaderPool.Get().(*bytes.Reader)
	defer c.byteReaderPool.Put(byteReader)
	byteReader.Reset(data)

	var reader io.Reader
	switch tp {
	case ContentEncodingIdentity:
		if limit > 0 && int64(len(data)) > limit {
			return nil, errors.Wrapf(ErrTooLarge, "%d bytes", len(data))
		}
		return data, nil
	case ContentEncodingGzip:
		r, err := gzip.NewReader(byteReader)
		if err != nil {
			return nil, errors.Wrap(err, "decompress gzip")
		}
		defer r.Close()
		reader = r
	case ContentEncodingDeflate:
		r, err := zlib.NewReader(byteReader)
		if err != nil {
			return nil, errors.Wrap(err, "decompress deflate")
		}
		defer r.Close()
		reader = r
	case ContentEncodingBrotli:
		reader = brotli.NewReader(byteReader)
	default:
		return nil, ErrUnknownContentEncoding
	}

	if limit > 0 {
		reader = io.LimitReader(reader, limit+1)
	}

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %s", tp)
	}
	if limit > 0 && int64(len(out)) > limit {
		return nil, errors.Wrapf(ErrTooLarge, "decompress %s: over %d bytes", tp, limit)
	}
	return out, nil
}
