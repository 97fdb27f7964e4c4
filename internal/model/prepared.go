package model

import (
	"net/url"
	"strconv"
	"strings"
)

// PreparedRequest is a Request with its URL parsed, its Host/Content-Length
// computed, and its body wired up: the shape the wire layer and the
// connection manager actually consume. Built once per redirect hop;
// a retry re-sends the same PreparedRequest, restarting its
// RequestBody, since RequestBody.Start is restartable.
type PreparedRequest struct {
	*Request

	URL        *url.URL
	HeaderHost string
	Header     Header // Host/Content-Length stripped out

	ContentLength int64 // -1 if unknown (StreamChunked)
	Secure        bool
	Host          string
	Port          int
}

// Prepare resolves r.URL, strips any caller-supplied Host/Content-Length
// header (Host and Content-Length are always computed, never taken
// from the caller's header), and
// uppercases the method.
func Prepare(r *Request) (*PreparedRequest, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, &InvalidURLError{URL: r.URL, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &InvalidURLError{URL: r.URL, Reason: "unknown scheme " + u.Scheme}
	}
	port, err := effectivePort(u)
	if err != nil {
		return nil, err
	}
	if u.Path == "" {
		u.Path = "/"
	}
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = "GET"
	}

	header := r.Header.Clone()
	if header == nil {
		header = Header{}
	}
	for k := range header {
		switch strings.ToLower(k) {
		case "host", "content-length":
			header.Del(k)
		}
	}

	cl := int64(-1)
	if r.Body != nil {
		cl = r.Body.Len()
	} else {
		cl = 0
	}

	rcopy := *r
	rcopy.Method = method

	pr := &PreparedRequest{
		Request:       &rcopy,
		URL:           u,
		HeaderHost:    u.Host,
		Header:        header,
		ContentLength: cl,
		Secure:        u.Scheme == "https",
		Host:          u.Hostname(),
		Port:          port,
	}
	return pr, nil
}

// RequestTarget renders the request-target for the request line: the
// path plus the (already percent-encoded) query string, with its '?'
// separator reinserted, or an absolute-URI when dialing through a
// plain-HTTP proxy.
func (p *PreparedRequest) RequestTarget(absoluteURI bool) string {
	path := p.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	q := p.URL.RawQuery
	target := path
	if q != "" {
		target += "?" + q
	}
	if !absoluteURI {
		return target
	}
	return p.URL.Scheme + "://" + p.HeaderHost + target
}

// HostPort renders "host:port" even when Port is the scheme default,
// for use in CONNECT request lines and Host headers that must be
// explicit.
func (p *PreparedRequest) HostPort() string {
	return p.Host + ":" + strconv.Itoa(p.Port)
}
