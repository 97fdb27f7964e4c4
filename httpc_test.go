package httpc

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedServer starts a loopback listener and serves one scripted
// raw response per accepted connection, in order, reading and
// discarding each request up to the blank line that ends its headers.
func scriptedServer(t *testing.T, responses ...string) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for _, raw := range responses {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn, raw string) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\n')
					if err != nil || line == "\r\n" {
						break
					}
				}
				io.WriteString(c, raw)
			}(c, raw)
		}
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(p)
	require.NoError(t, err)
	return h, portNum
}

func target(host string, port int, path string) string {
	return "http://" + host + ":" + strconv.Itoa(port) + path
}

func TestManagerDo(t *testing.T) {
	t.Run("runs a request and returns its body", func(t *testing.T) {
		host, port := scriptedServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok")

		m := NewManager(ManagerSettings{})
		defer m.Close()

		req, err := ParseURL(target(host, port, "/x"))
		require.NoError(t, err)

		resp, _, err := m.Do(context.Background(), req, NewCookieJar())
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "ok", string(b))
	})

	t.Run("follows a same-host redirect and carries cookies across hops", func(t *testing.T) {
		host, port := scriptedServer(t,
			"HTTP/1.1 302 Found\r\nLocation: /next\r\nSet-Cookie: a=1; Path=/\r\nContent-Length: 0\r\n\r\n",
			"HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok",
		)

		m := NewManager(ManagerSettings{})
		defer m.Close()

		req, err := ParseURL(target(host, port, "/start"))
		require.NoError(t, err)
		req.RedirectMax = 5

		resp, jar, err := m.Do(context.Background(), req, NewCookieJar())
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		require.Equal(t, target(host, port, "/next"), resp.EffectiveURL)
		require.Equal(t, 1, jar.Count())
	})
}

func TestWithResponse(t *testing.T) {
	host, port := scriptedServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nConnection: close\r\n\r\nhello")

	m := NewManager(ManagerSettings{})
	defer m.Close()

	req, err := ParseURL(target(host, port, "/x"))
	require.NoError(t, err)

	var got string
	_, err = WithResponse(context.Background(), req, m, NewCookieJar(), func(r *Response) error {
		b, err := io.ReadAll(r.Body)
		got = string(b)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestLbs(t *testing.T) {
	host, port := scriptedServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nConnection: close\r\n\r\nhello")

	m := NewManager(ManagerSettings{})
	defer m.Close()

	req, err := ParseURL(target(host, port, "/x"))
	require.NoError(t, err)

	resp, buf, _, err := Lbs(context.Background(), req, m, NewCookieJar())
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))
}
