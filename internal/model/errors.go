package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrManagerClosed is a closed-manager sentinel that IsTyped
// recognizes. internal/pool's Acquire does not return it; it reports
// its own pool.ErrManagerClosed type.
var ErrManagerClosed = fmt.Errorf("httpc: manager closed")

// InvalidURLError reports a request URL the engine refuses to dial.
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("httpc: invalid url %q: %s", e.URL, e.Reason)
}

// StatusCodeError is raised when a request's CheckStatus callback
// rejects a response.
type StatusCodeError struct {
	StatusCode int
	Status     string
	Header     Header
	// CookieHeader carries the Set-Cookie values seen on the rejected
	// response. The jar returned alongside this error already has them
	// folded in.
	CookieHeader []string
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("httpc: unexpected status: %s", e.Status)
}

// TooManyRedirectsError is raised when a redirect chain exhausts its
// budget. History is the list of prior (already followed) responses,
// in chronological order; the response that triggered the error is
// not included.
type TooManyRedirectsError struct {
	History []*Response
}

func (e *TooManyRedirectsError) Error() string {
	return fmt.Sprintf("httpc: stopped after %d redirects", len(e.History))
}

// UnparseableRedirectError is raised when a 3xx response's Location
// header cannot be resolved into a URL.
type UnparseableRedirectError struct {
	Response *Response
}

func (e *UnparseableRedirectError) Error() string {
	loc := ""
	if e.Response != nil {
		loc = e.Response.Header.Get("Location")
	}
	return fmt.Sprintf("httpc: unparseable redirect location %q", loc)
}

// TooManyRetriesError is raised when the retry-on-reused-connection
// budget is exhausted.
type TooManyRetriesError struct {
	Last error
}

func (e *TooManyRetriesError) Error() string {
	return fmt.Sprintf("httpc: too many retries, last error: %v", e.Last)
}

func (e *TooManyRetriesError) Unwrap() error { return e.Last }

// ResponseTimeoutError fires when the connect+send+receive-headers
// deadline elapses.
type ResponseTimeoutError struct{}

func (e *ResponseTimeoutError) Error() string { return "httpc: response timeout" }

// ConnectionTimeoutError fires when dialing exceeds the deadline.
type ConnectionTimeoutError struct{}

func (e *ConnectionTimeoutError) Error() string { return "httpc: connection timeout" }

// ConnectionClosedError reports an unexpected EOF mid-frame.
type ConnectionClosedError struct {
	Inner error
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("httpc: connection closed: %v", e.Inner)
}

func (e *ConnectionClosedError) Unwrap() error { return e.Inner }

// InvalidStatusLineError reports a malformed status line.
type InvalidStatusLineError struct {
	Raw string
}

func (e *InvalidStatusLineError) Error() string {
	return fmt.Sprintf("httpc: invalid status line %q", e.Raw)
}

// InvalidHeaderError reports a malformed header line.
type InvalidHeaderError struct {
	Raw string
}

func (e *InvalidHeaderError) Error() string {
	return fmt.Sprintf("httpc: invalid header %q", e.Raw)
}

// OverlongHeadersError reports that the header block exceeded the
// parser's byte cap.
type OverlongHeadersError struct {
	Cap int
}

func (e *OverlongHeadersError) Error() string {
	return fmt.Sprintf("httpc: headers exceeded %d bytes", e.Cap)
}

// InvalidChunkHeadersError reports a malformed chunk size line.
type InvalidChunkHeadersError struct {
	Raw string
}

func (e *InvalidChunkHeadersError) Error() string {
	return fmt.Sprintf("httpc: invalid chunk header %q", e.Raw)
}

// ResponseLengthAndChunkingBothUsedError reports a response carrying
// both Content-Length and Transfer-Encoding: chunked.
type ResponseLengthAndChunkingBothUsedError struct{}

func (e *ResponseLengthAndChunkingBothUsedError) Error() string {
	return "httpc: response has both Content-Length and Transfer-Encoding: chunked"
}

// ProxyConnectError reports a non-2xx CONNECT response from an HTTP
// proxy.
type ProxyConnectError struct {
	Host, Port string
	StatusCode int
}

func (e *ProxyConnectError) Error() string {
	return fmt.Sprintf("httpc: proxy CONNECT to %s:%s failed with status %d", e.Host, e.Port, e.StatusCode)
}

// TLSError wraps a failure from the TLS handshake collaborator.
type TLSError struct {
	Inner error
}

func (e *TLSError) Error() string { return fmt.Sprintf("httpc: tls error: %v", e.Inner) }
func (e *TLSError) Unwrap() error { return e.Inner }

// InternalIOError is the catch-all funnel for raw I/O errors re-typed
// by a Manager's WrapIOException hook.
type InternalIOError struct {
	Inner error
}

func (e *InternalIOError) Error() string { return fmt.Sprintf("httpc: io error: %v", e.Inner) }
func (e *InternalIOError) Unwrap() error { return e.Inner }

// IsTyped reports whether err is already one of this package's typed
// errors (or a context cancellation), so a WrapIOException hook knows
// to leave it alone rather than burying it under another layer.
func IsTyped(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrManagerClosed) {
		return true
	}
	switch err.(type) {
	case *InvalidURLError, *StatusCodeError, *TooManyRedirectsError, *UnparseableRedirectError,
		*TooManyRetriesError, *ResponseTimeoutError, *ConnectionTimeoutError, *ConnectionClosedError,
		*InvalidStatusLineError, *InvalidHeaderError, *OverlongHeadersError, *InvalidChunkHeadersError,
		*ResponseLengthAndChunkingBothUsedError, *ProxyConnectError, *TLSError, *InternalIOError:
		return true
	}
	return false
}
