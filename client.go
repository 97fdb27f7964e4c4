package httpc

import (
	"bytes"
	"context"
	"io"
)

// WithResponse runs req against m with the current jar, and hands the
// still-open response to action. The response body is always closed
// when WithResponse returns, whether action returned normally, erred,
// or panicked. Use this as the scoped-streaming entry point for large
// bodies a caller doesn't want fully buffered.
func WithResponse(ctx context.Context, req *Request, m *Manager, jar CookieJar, action func(*Response) error) (CookieJar, error) {
	resp, next, err := m.Do(ctx, req, jar)
	if err != nil {
		return jar, err
	}
	defer func() {
		if resp.Body != nil {
			resp.Body.Close()
		}
	}()
	if err := action(resp); err != nil {
		return next, err
	}
	return next, nil
}

// Lbs ("load body string") runs req against m with the current jar
// and fully buffers the response body into memory, returning the
// buffered bytes alongside the response (whose Body is left readable
// over the buffer for callers that want to use Response uniformly).
func Lbs(ctx context.Context, req *Request, m *Manager, jar CookieJar) (*Response, []byte, CookieJar, error) {
	resp, next, err := m.Do(ctx, req, jar)
	if err != nil {
		return nil, nil, jar, err
	}
	var buf []byte
	if resp.Body != nil {
		buf, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return resp, nil, next, err
		}
	}
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	resp.ContentLength = int64(len(buf))
	return resp, buf, next, nil
}
