package body

import (
	"compress/gzip"
	"io"
	"strconv"

	"github.com/go-httpc/httpc/internal/model"
	"github.com/go-httpc/httpc/internal/wire"
)

// Disposition is the connection release disposition: return it to
// the pool, or close it.
type Disposition int

const (
	DontReuse Disposition = iota
	Reuse
)

// Release is called exactly once, when the response body is either
// fully drained or explicitly closed early, to hand the connection
// back to internal/pool.
type Release func(Disposition)

// FrameResponseBody selects the response body framing, in order:
// no-body status, chunked, content-length, read-to-EOF. It wraps the
// result for gzip-on-the-fly decode when applicable, and arranges for
// release to be called with the correct disposition once the body is
// drained or closed.
//
// keepAlive reports whether the connection is otherwise eligible for
// reuse (HTTP/1.1 or "Connection: keep-alive", and no "Connection: close");
// framing anomalies always force DontReuse regardless of keepAlive.
func FrameResponseBody(c wire.Connection, method string, statusCode int, header model.Header, rawBody bool, decompress model.DecompressPredicate, keepAlive bool, release Release) (io.ReadCloser, int64, error) {
	chunked := header.Get("Transfer-Encoding") == "chunked"
	clHeader := header.Get("Content-Length")
	hasCL := clHeader != ""

	if chunked && hasCL {
		release(DontReuse)
		return nil, 0, &model.ResponseLengthAndChunkingBothUsedError{}
	}

	noBody := method == "HEAD" || (statusCode >= 100 && statusCode < 200) || statusCode == 204 || statusCode == 304

	var (
		inner io.Reader
		cl    int64 = -1
		final Disposition
	)

	switch {
	case noBody:
		release(disposition(keepAlive))
		return io.NopCloser(noReader{}), 0, nil
	case chunked:
		inner = wire.NewChunkedReader(c)
		final = disposition(keepAlive)
	case hasCL:
		n, err := strconv.ParseInt(clHeader, 10, 64)
		if err != nil || n < 0 {
			release(DontReuse)
			return nil, 0, &model.InvalidHeaderError{Raw: "Content-Length: " + clHeader}
		}
		cl = n
		if n == 0 {
			release(disposition(keepAlive))
			return io.NopCloser(noReader{}), 0, nil
		}
		inner = &exactReader{c: c, remain: n}
		final = disposition(keepAlive)
	default:
		inner = &eofReader{c: c}
		final = DontReuse // length unknown: the body ends only when the peer closes the connection
	}

	fb := &framedBody{r: inner, release: release, final: final}

	if !rawBody && header.Get("Content-Encoding") == "gzip" && decompress != nil && decompress(header.Get("Content-Type")) {
		header.Del("Content-Encoding")
		header.Del("Content-Length")
		return &gzipBody{inner: fb}, -1, nil
	}
	return fb, cl, nil
}

func disposition(keepAlive bool) Disposition {
	if keepAlive {
		return Reuse
	}
	return DontReuse
}

// exactReader reads exactly remain bytes from a Connection, surfacing
// a premature close as ConnectionClosedError.
type exactReader struct {
	c      wire.Connection
	remain int64
}

func (r *exactReader) Read(p []byte) (int, error) {
	if r.remain <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remain {
		p = p[:r.remain]
	}
	n, err := r.c.Read(p)
	r.remain -= int64(n)
	if err != nil {
		if err == io.EOF && r.remain > 0 {
			return n, &model.ConnectionClosedError{Inner: io.ErrUnexpectedEOF}
		}
		return n, err
	}
	return n, nil
}

// eofReader reads until the connection closes; used when neither
// Transfer-Encoding nor Content-Length was present.
type eofReader struct {
	c wire.Connection
}

func (r *eofReader) Read(p []byte) (int, error) { return r.c.Read(p) }

type noReader struct{}

func (noReader) Read([]byte) (int, error) { return 0, io.EOF }

// framedBody tracks whether its underlying framing reached its
// terminator (drained) vs. was closed early, and releases the
// connection with the right disposition exactly once.
type framedBody struct {
	r        io.Reader
	release  Release
	final    Disposition
	drained  bool
	released bool
}

func (b *framedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		b.drained = true
		b.doRelease(b.final)
	} else if err != nil {
		b.doRelease(DontReuse)
	}
	return n, err
}

func (b *framedBody) Close() error {
	if !b.drained {
		b.doRelease(DontReuse)
	}
	return nil
}

func (b *framedBody) doRelease(d Disposition) {
	if b.released {
		return
	}
	b.released = true
	b.release(d)
}

// gzipBody lazily constructs the gzip.Reader on first Read (a sticky
// error idiom): constructing it eagerly would block on header bytes
// that may not have arrived yet.
type gzipBody struct {
	inner *framedBody
	zr    *gzip.Reader
	zerr  error
}

func (g *gzipBody) Read(p []byte) (int, error) {
	if g.zr == nil && g.zerr == nil {
		g.zr, g.zerr = gzip.NewReader(g.inner)
	}
	if g.zerr != nil {
		return 0, g.zerr
	}
	return g.zr.Read(p)
}

func (g *gzipBody) Close() error {
	if g.zr != nil {
		g.zr.Close()
	}
	return g.inner.Close()
}
