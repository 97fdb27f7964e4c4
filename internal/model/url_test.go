package model

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	t.Run("defaults method to GET and keeps the url as given", func(t *testing.T) {
		req, err := ParseURL("https://example.com/a/b?x=1")
		require.NoError(t, err)
		assert.Equal(t, "GET", req.Method)
		assert.Equal(t, "https://example.com/a/b?x=1", req.URL)
	})

	t.Run("rejects an unparseable url", func(t *testing.T) {
		_, err := ParseURL("http://[::1")
		require.Error(t, err)
		var ue *InvalidURLError
		require.ErrorAs(t, err, &ue)
	})

	t.Run("rejects a non-http(s) scheme", func(t *testing.T) {
		_, err := ParseURL("ftp://example.com/file")
		require.Error(t, err)
	})
}

func TestPrepare_StripsHostAndContentLengthHeaders(t *testing.T) {
	r := &Request{
		Method: "post",
		URL:    "http://example.com/path",
		Header: Header{
			"Host":           {"evil.example"},
			"Content-Length": {"999"},
			"X-Custom":       {"keep-me"},
		},
		Body: BytesBody("hello"),
	}
	pr, err := Prepare(r)
	require.NoError(t, err)

	assert.Equal(t, "POST", pr.Method)
	// HeaderHost always comes from the URL, never the caller's header,
	// even though the header is present here and deleted below.
	assert.Equal(t, "example.com", pr.HeaderHost)
	assert.Equal(t, int64(5), pr.ContentLength)
	assert.Equal(t, "example.com", pr.Host)
	assert.Equal(t, 80, pr.Port)
	assert.False(t, pr.Secure)
	assert.Empty(t, pr.Header.Get("Host"))
	assert.Empty(t, pr.Header.Get("Content-Length"))
	assert.Equal(t, "keep-me", pr.Header.Get("X-Custom"))
}

func TestPrepare_DefaultsPortFromScheme(t *testing.T) {
	pr, err := Prepare(&Request{URL: "https://example.com/"})
	require.NoError(t, err)
	assert.Equal(t, 443, pr.Port)
	assert.True(t, pr.Secure)
}

func TestPrepare_UnknownLengthBodyIsChunked(t *testing.T) {
	pr, err := Prepare(&Request{
		URL: "http://example.com/",
		Body: StreamChunkedBody{Source: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("x")), nil
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), pr.ContentLength)
}

func TestWithQuery(t *testing.T) {
	t.Run("percent-encodes keys and values and appends in sorted key order", func(t *testing.T) {
		out, err := WithQuery("http://example.com/search", map[string][]string{
			"q":      {"a b"},
			"filter": {"x/y", "z"},
		})
		require.NoError(t, err)
		assert.Equal(t, "http://example.com/search?filter=x%2Fy&filter=z&q=a+b", out)
	})

	t.Run("appends after an existing query string", func(t *testing.T) {
		out, err := WithQuery("http://example.com/?a=1", map[string][]string{"b": {"2"}})
		require.NoError(t, err)
		assert.Equal(t, "http://example.com/?a=1&b=2", out)
	})

	t.Run("rejects an unparseable url", func(t *testing.T) {
		_, err := WithQuery("http://[::1", nil)
		require.Error(t, err)
		var ue *InvalidURLError
		require.ErrorAs(t, err, &ue)
	})
}

func TestRequestTarget(t *testing.T) {
	pr, err := Prepare(&Request{URL: "http://example.com/a%20b?x=1+2"})
	require.NoError(t, err)
	assert.Equal(t, "/a%20b?x=1+2", pr.RequestTarget(false))
	assert.Equal(t, "http://example.com/a%20b?x=1+2", pr.RequestTarget(true))
}
