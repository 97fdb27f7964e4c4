package httpc

import (
	"net/http"

	"github.com/go-httpc/httpc/internal/model"
)

// Header reuses net/http's header representation throughout, same as
// the internal layers.
type Header = http.Header

type Request = model.Request
type PreparedRequest = model.PreparedRequest
type Response = model.Response

type RequestBody = model.RequestBody
type BytesBody = model.BytesBody
type BuilderFunc = model.BuilderFunc
type BuilderBody = model.BuilderBody
type StreamSource = model.StreamSource
type StreamBody = model.StreamBody
type StreamChunkedBody = model.StreamChunkedBody

type CheckStatus = model.CheckStatus
type DecompressPredicate = model.DecompressPredicate
type BodyExceptionHandler = model.BodyExceptionHandler

// The HttpError taxonomy, re-exported so callers can type-switch
// without reaching into internal/model.
type (
	InvalidURLError                        = model.InvalidURLError
	StatusCodeError                        = model.StatusCodeError
	TooManyRedirectsError                  = model.TooManyRedirectsError
	UnparseableRedirectError               = model.UnparseableRedirectError
	TooManyRetriesError                    = model.TooManyRetriesError
	ResponseTimeoutError                   = model.ResponseTimeoutError
	ConnectionTimeoutError                 = model.ConnectionTimeoutError
	ConnectionClosedError                  = model.ConnectionClosedError
	InvalidStatusLineError                 = model.InvalidStatusLineError
	InvalidHeaderError                     = model.InvalidHeaderError
	OverlongHeadersError                   = model.OverlongHeadersError
	InvalidChunkHeadersError               = model.InvalidChunkHeadersError
	ResponseLengthAndChunkingBothUsedError = model.ResponseLengthAndChunkingBothUsedError
	ProxyConnectError                      = model.ProxyConnectError
	TLSError                               = model.TLSError
	InternalIOError                        = model.InternalIOError
)

// ParseURL resolves a raw URL into a bare Request (Method defaults to
// GET), per the parseUrl(str) -> Request library entry point.
func ParseURL(raw string) (*Request, error) { return model.ParseURL(raw) }

// WithQuery appends params to rawURL's query string, percent-encoding
// each key and value, and returns the combined URL string.
func WithQuery(rawURL string, params map[string][]string) (string, error) {
	return model.WithQuery(rawURL, params)
}
