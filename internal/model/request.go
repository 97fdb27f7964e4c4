package model

import (
	"io"
	"net/http"
	"time"
)

// Header reuses net/http's header type; header semantics (canonical
// names, case-insensitive lookup) are borrowed wholesale rather than
// reimplemented.
type Header = http.Header

// CheckStatus inspects a response's status and headers and optionally
// returns a failure describing why the response should be rejected.
type CheckStatus func(statusCode int, header Header) error

// DecompressPredicate decides, from a response's Content-Type,
// whether a gzip-encoded body should be transparently inflated.
type DecompressPredicate func(contentType string) bool

// BodyExceptionHandler is consulted when writing a request body
// fails; returning nil tells the engine to swallow the write error
// and still attempt to read a response (servers that answer 413 and
// drop the write side of the connection).
type BodyExceptionHandler func(err error) error

// Request is the caller-built description of a single HTTP exchange.
// Host and Content-Length are always computed from URL/Body, never
// taken from Header.
type Request struct {
	Method string
	URL    string
	Header Header
	Body   RequestBody

	Proxy      string // explicit proxy URL, overrides environment discovery
	SOCKSProxy string

	RawBody     bool // suppress gzip decode even if Content-Encoding: gzip
	Decompress  DecompressPredicate
	RedirectMax int // 0 disables following redirects
	CheckStatus CheckStatus

	ResponseTimeout time.Duration // connect+send+receive-headers budget, 0 = none
	HTTPVersion     string        // default "1.1"

	OnBodyWriteError BodyExceptionHandler
}

// RequestBody is the sum type of request body variants: Bytes, Builder, Stream,
// StreamChunked. Len returns -1 for the unknown-length variant.
type RequestBody interface {
	Len() int64
	// Start returns a fresh reader over the body's bytes. Implementations
	// backed by a restartable source (Stream/StreamChunked) MUST be safe
	// to call more than once, producing identical bytes each time, so
	// retries and redirects can re-send the body.
	Start() (io.ReadCloser, error)
}

// BytesBody is the Bytes(b) variant: a known-length, identity-encoded
// byte slice.
type BytesBody []byte

func (b BytesBody) Len() int64 { return int64(len(b)) }
func (b BytesBody) Start() (io.ReadCloser, error) {
	return io.NopCloser(newByteReader(b)), nil
}

// BuilderFunc emits exactly Len bytes to w.
type BuilderFunc func(w io.Writer) error

// BuilderBody is the Builder(len, writer) variant.
type BuilderBody struct {
	Size    int64
	Builder BuilderFunc
}

func (b BuilderBody) Len() int64 { return b.Size }
func (b BuilderBody) Start() (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(b.Builder(pw))
	}()
	return pr, nil
}

// StreamSource is a restartable lazy byte sequence: Open must be
// callable repeatedly (on retry or redirect) and yield the same bytes
// each time, exactly Size of them.
type StreamSource func() (io.ReadCloser, error)

// StreamBody is the Stream(len, source) variant: known length, lazily
// produced, restartable bytes.
type StreamBody struct {
	Size   int64
	Source StreamSource
}

func (b StreamBody) Len() int64                   { return b.Size }
func (b StreamBody) Start() (io.ReadCloser, error) { return b.Source() }

// StreamChunkedBody is the StreamChunked(source) variant: unknown
// length, sent with Transfer-Encoding: chunked.
type StreamChunkedBody struct {
	Source StreamSource
}

func (b StreamChunkedBody) Len() int64                   { return -1 }
func (b StreamChunkedBody) Start() (io.ReadCloser, error) { return b.Source() }

func newByteReader(b []byte) io.Reader { return &sliceReader{b: b} }

type sliceReader struct {
	b []byte
	i int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}
