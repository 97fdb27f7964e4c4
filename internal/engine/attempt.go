// Package engine implements the request engine and redirect
// following. The retry and redirect behaviors here are composed
// around a single low-level "attempt", the same way a middleware
// chain composes around one handler.
package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"strconv"

	"github.com/go-httpc/httpc/internal/body"
	"github.com/go-httpc/httpc/internal/dialer"
	"github.com/go-httpc/httpc/internal/model"
	"github.com/go-httpc/httpc/internal/pool"
	"github.com/go-httpc/httpc/internal/proxyenv"
	"github.com/go-httpc/httpc/internal/wire"
)

// Settings configures the engine; Manager and Dialer are required.
type Settings struct {
	Manager *pool.Manager
	Dialer  *dialer.Dialer

	// ModifyRequest runs once a request has been prepared, before any
	// I/O.
	ModifyRequest func(*model.PreparedRequest) error
	// RetryableException classifies errors as safe to retry once on a
	// freshly dialed connection when they occurred on a Reused one.
	RetryableException func(error) bool

	// WrapIOException is the single funnel raw I/O errors from dial and
	// the write/read-headers phase pass through to get re-typed as
	// model.InternalIOError. Errors already in the typed taxonomy
	// (model.IsTyped) and context cancellation pass through unchanged.
	WrapIOException func(error) error

	// RewriteMethodOn301302 controls whether a 301/302 redirect rewrites
	// the method to GET and drops the body (legacy browser behavior) or
	// preserves them like 307/308; see DESIGN.md.
	RewriteMethodOn301302 bool
}

func (s Settings) withDefaults() Settings {
	if s.RetryableException == nil {
		s.RetryableException = DefaultRetryable
	}
	if s.WrapIOException == nil {
		s.WrapIOException = DefaultWrapIOException
	}
	return s
}

// DefaultWrapIOException re-types any raw, untyped error as
// model.InternalIOError. Errors already in the taxonomy (including
// ones internal/dialer already re-typed as model.TLSError at the
// handshake boundary) and context cancellation are returned as-is.
func DefaultWrapIOException(err error) error {
	if err == nil || model.IsTyped(err) {
		return err
	}
	return &model.InternalIOError{Inner: err}
}

// DefaultRetryable classifies EOF, reset, and the "no response data
// received" case of a just-dialed-from-pool connection that turns out
// to already be dead as safe to retry.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var ceErr *model.ConnectionClosedError
	if errors.As(err, &ceErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}

// AttemptWithRetry performs a single logical request (one connection
// lease and everything written/read on it) with a retry-once policy:
// a Reused connection that fails transparently gets exactly one retry
// on a freshly dialed connection; a Fresh connection's failure always
// propagates.
func AttemptWithRetry(ctx context.Context, pr *model.PreparedRequest, proxy *dialer.ProxyTarget, s Settings) (*model.Response, error) {
	s = s.withDefaults()
	resp, reused, err := attempt(ctx, pr, proxy, s)
	if err == nil {
		return resp, nil
	}
	if !reused || !s.RetryableException(err) {
		return nil, err
	}
	resp2, _, err2 := attempt(ctx, pr, proxy, s)
	if err2 != nil {
		return nil, &model.TooManyRetriesError{Last: err2}
	}
	return resp2, nil
}

// attempt acquires a connection, writes the request, parses the
// response head, and frames the response body. It reports whether the
// connection it used was Reused, so the retry policy can decide
// whether to retry.
//
// pr.ResponseTimeout, when set, scopes a single deadline over dial,
// write, and receive-headers (not the body read that follows): dial
// timing out surfaces ConnectionTimeoutError, and the deadline firing
// anywhere after that forcibly closes the in-flight connection and
// surfaces ResponseTimeoutError.
func attempt(ctx context.Context, pr *model.PreparedRequest, proxy *dialer.ProxyTarget, s Settings) (resp *model.Response, reused bool, err error) {
	key := poolKey(pr, proxy)

	hasDeadline := pr.ResponseTimeout > 0
	headCtx := ctx
	if hasDeadline {
		var cancel context.CancelFunc
		headCtx, cancel = context.WithTimeout(ctx, pr.ResponseTimeout)
		defer cancel()
	}

	lease, err := s.Manager.Acquire(headCtx, key, func(ctx context.Context) (wire.Connection, error) {
		conn, err := s.Dialer.Connect(ctx, pr.Host, pr.Port, pr.Secure, proxy)
		if err != nil {
			return nil, s.WrapIOException(err)
		}
		return conn, nil
	})
	if err != nil {
		if hasDeadline && headCtx.Err() != nil && ctx.Err() == nil {
			return nil, false, &model.ConnectionTimeoutError{}
		}
		return nil, false, err
	}
	reused = lease.State == pool.Reused

	absoluteURI := proxy != nil && (proxy.Scheme == "http" || proxy.Scheme == "https") && !pr.Secure
	if absoluteURI && (proxy.Username != "" || proxy.Password != "") {
		auth := base64.StdEncoding.EncodeToString([]byte(proxy.Username + ":" + proxy.Password))
		pr.Header.Set("Proxy-Authorization", "Basic "+auth)
	}

	var sh *wire.StatusHeaders
	var earlyHeaders *wire.StatusHeaders
	headerPhase := func() error {
		if err := body.WriteRequest(lease.Conn, pr, absoluteURI); err != nil {
			return err
		}
		if body.HasContinueExpectation(pr) {
			proceed, early, cerr := body.AwaitContinue(lease.Conn, body.ContinueWait)
			if cerr != nil {
				return cerr
			}
			if !proceed && early != nil {
				earlyHeaders = early
				return nil
			}
		}
		if err := body.WriteBody(lease.Conn, pr); err != nil {
			return err
		}
		statusHeaders, err := wire.ReadStatusHeaders(lease.Conn)
		if err != nil {
			return err
		}
		sh = statusHeaders
		return nil
	}

	var headerErr error
	if hasDeadline {
		headerErr = runWithDeadline(headCtx, lease.Conn, headerPhase)
	} else {
		headerErr = headerPhase()
	}
	if headerErr != nil {
		lease.Release(pool.DontReuse)
		var she *wire.StatusHeadersError
		if errors.As(headerErr, &she) {
			switch she.Kind {
			case "status-line":
				headerErr = &model.InvalidStatusLineError{Raw: she.Raw}
			case "header":
				headerErr = &model.InvalidHeaderError{Raw: she.Raw}
			case "overlong":
				headerErr = &model.OverlongHeadersError{Cap: wire.HeaderCap}
			}
		}
		return nil, reused, s.WrapIOException(headerErr)
	}
	if earlyHeaders != nil {
		// The server answered before we finished writing the body (e.g.
		// rejecting a 413 without waiting for it). Its status headers
		// stand in for the ones the normal path would have read, and its
		// body, if any, is framed exactly the same way.
		sh = earlyHeaders
	}

	keepAlive := isKeepAlive(sh)
	release := func(d body.Disposition) {
		if d == body.Reuse {
			lease.Release(pool.Reuse)
		} else {
			lease.Release(pool.DontReuse)
		}
	}
	rc, cl, err := body.FrameResponseBody(lease.Conn, pr.Method, sh.StatusCode, sh.Header, pr.RawBody, pr.Decompress, keepAlive, release)
	if err != nil {
		return nil, reused, err
	}
	return &model.Response{
		StatusCode:    sh.StatusCode,
		Status:        sh.Status,
		Proto:         sh.Proto,
		Header:        sh.Header,
		Body:          rc,
		ContentLength: cl,
		EffectiveURL:  pr.URL.String(),
	}, reused, nil
}

// runWithDeadline runs fn on a separate goroutine and races it against
// ctx. If ctx fires first, conn is forcibly closed (unblocking fn,
// whose result is then discarded) and ResponseTimeoutError is
// returned; this is the only place the header-phase deadline actually
// bites, since body.WriteRequest/WriteBody and wire.ReadStatusHeaders
// are plain blocking calls with no context of their own.
func runWithDeadline(ctx context.Context, conn wire.Connection, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		conn.Close()
		<-done
		return &model.ResponseTimeoutError{}
	}
}

type errReaderEOF struct{}

func (errReaderEOF) Read([]byte) (int, error) { return 0, io.EOF }

// isKeepAlive reports whether the connection is eligible for reuse:
// HTTP/1.1 or an explicit keep-alive, and no explicit close.
func isKeepAlive(sh *wire.StatusHeaders) bool {
	conn := sh.Header.Get("Connection")
	if equalFold(conn, "close") {
		return false
	}
	if sh.Proto == "HTTP/1.1" {
		return true
	}
	return equalFold(conn, "keep-alive")
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ResolveProxy picks the proxy target for pr, honoring an explicit
// request-level override first.
func ResolveProxy(pr *model.PreparedRequest) (*dialer.ProxyTarget, error) {
	explicit := pr.Request.Proxy
	scheme := "http"
	if pr.Secure {
		scheme = "https"
	}
	if explicit == "" && pr.Request.SOCKSProxy != "" {
		return dialer.ParseProxyURL(pr.Request.SOCKSProxy)
	}
	return proxyenv.Resolve(scheme, pr.Host, explicit)
}

func poolKey(pr *model.PreparedRequest, proxy *dialer.ProxyTarget) pool.Key {
	k := pool.Key{Host: pr.Host, Port: pr.Port, Secure: pr.Secure}
	if proxy != nil {
		k.ProxyKey = proxy.Scheme + "://" + proxy.Host + ":" + strconv.Itoa(proxy.Port)
	}
	return k
}
