// Package body implements request body serialization
// (Content-Length vs chunked Transfer-Encoding, the 100-continue
// wait) and response body framing (identity/content-length/chunked,
// gzip-on-the-fly decode).
package body

import (
	"bufio"
	"io"
	"strconv"
	"time"

	"github.com/go-httpc/httpc/internal/model"
	"github.com/go-httpc/httpc/internal/wire"
)

// ContinueWait is the fixed budget a caller-requested
// "Expect: 100-continue" gets before the engine gives up waiting and
// sends the body anyway.
const ContinueWait = time.Second

// WriteRequest writes the request line and header block of pr to c;
// the body is written separately by WriteBody. absoluteURI selects the
// request-target form: plain-HTTP-proxy dialing writes an absolute-URI
// request-target instead of a path.
//
// If the request carries "Expect: 100-continue", the caller is expected
// to use AwaitContinue before calling WriteBody.
func WriteRequest(c wire.Connection, pr *model.PreparedRequest, absoluteURI bool) error {
	bw := bufio.NewWriterSize(c, 4096)

	bw.WriteString(pr.Method)
	bw.WriteByte(' ')
	bw.WriteString(pr.RequestTarget(absoluteURI))
	version := pr.HTTPVersion
	if version == "" {
		version = "1.1"
	}
	bw.WriteString(" HTTP/")
	bw.WriteString(version)
	bw.WriteString("\r\n")

	bw.WriteString("Host: ")
	bw.WriteString(pr.HeaderHost)
	bw.WriteString("\r\n")

	chunked := pr.ContentLength < 0
	if chunked {
		bw.WriteString("Transfer-Encoding: chunked\r\n")
	} else {
		bw.WriteString("Content-Length: ")
		bw.WriteString(strconv.FormatInt(pr.ContentLength, 10))
		bw.WriteString("\r\n")
	}
	for k, vs := range pr.Header {
		for _, v := range vs {
			bw.WriteString(k)
			bw.WriteString(": ")
			bw.WriteString(v)
			bw.WriteString("\r\n")
		}
	}
	bw.WriteString("\r\n")
	return bw.Flush()
}

// WriteBody writes pr's body (if any) to c, chunk-encoding it when
// Content-Length is unknown. On a write failure, pr.OnBodyWriteError
// (if set) gets a chance to swallow the error so the caller can still
// attempt to read a response.
func WriteBody(c wire.Connection, pr *model.PreparedRequest) error {
	if pr.Request.Body == nil {
		return nil
	}
	rc, err := pr.Request.Body.Start()
	if err != nil {
		return err
	}
	defer rc.Close()

	var writeErr error
	if pr.ContentLength < 0 {
		cw := wire.NewChunkedWriter(c)
		if _, err := io.Copy(cw, rc); err != nil {
			writeErr = err
		} else {
			writeErr = cw.Close()
		}
	} else if pr.ContentLength > 0 {
		_, writeErr = io.Copy(c, rc)
	}
	if writeErr != nil && pr.OnBodyWriteError != nil {
		return pr.OnBodyWriteError(writeErr)
	}
	return writeErr
}

// HasContinueExpectation reports whether the caller asked for
// "Expect: 100-continue" handling.
func HasContinueExpectation(pr *model.PreparedRequest) bool {
	return pr.Header.Get("Expect") == "100-continue"
}

// AwaitContinue waits up to ContinueWait for either a "100 Continue"
// status line (body should be sent) or any other status line, such as
// a 4xx/5xx rejection (body must be aborted and the response
// propagated to the caller as-is).
// It returns (proceed=true, nil) on 100 Continue, (false, resp) when a
// final response arrived instead, or (true, nil) on timeout: a
// timed-out wait still sends the body.
func AwaitContinue(c wire.Connection, deadline time.Duration) (proceed bool, early *wire.StatusHeaders, err error) {
	type result struct {
		sh  *wire.StatusHeaders
		err error
	}
	ch := make(chan result, 1)
	go func() {
		sh, err := wire.ReadStatusHeaders(c)
		ch <- result{sh, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return false, nil, r.err
		}
		if r.sh.StatusCode == 100 {
			return true, nil, nil
		}
		return false, r.sh, nil
	case <-time.After(deadline):
		return true, nil, nil
	}
}
