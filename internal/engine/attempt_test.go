package engine

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-httpc/httpc/internal/dialer"
	"github.com/go-httpc/httpc/internal/model"
	"github.com/go-httpc/httpc/internal/pool"
)

// cannedServer starts a loopback listener that, for each accepted
// connection, reads and discards one request (up to the blank line
// after headers) and writes back raw. It serves at most one
// connection per call to its returned accept function, letting a test
// script several distinct responses across several connections.
func cannedServer(t *testing.T) (host string, port int, serveNext func(raw string)) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- c
		}
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(p)
	require.NoError(t, err)

	serveNext = func(raw string) {
		go func() {
			c := <-conns
			defer c.Close()
			r := bufio.NewReader(c)
			for {
				line, err := r.ReadString('\n')
				if err != nil || line == "\r\n" {
					break
				}
			}
			io.WriteString(c, raw)
		}()
	}
	return h, portNum, serveNext
}

func newEngineSettings(d *dialer.Dialer, m *pool.Manager) Settings {
	return Settings{Manager: m, Dialer: d}
}

func TestAttemptWithRetry(t *testing.T) {
	t.Run("a fresh GET returns the parsed response with an identity body", func(t *testing.T) {
		host, port, serveNext := cannedServer(t)
		serveNext("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nConnection: close\r\n\r\nhello")

		m := pool.New(pool.Settings{})
		defer m.Close()
		d := dialer.New(dialer.Config{})

		pr, err := model.Prepare(&model.Request{Method: "GET", URL: "http://" + host + ":" + strconv.Itoa(port) + "/x"})
		require.NoError(t, err)

		resp, err := AttemptWithRetry(context.Background(), pr, nil, newEngineSettings(d, m))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "hello", string(body))
	})

	t.Run("a connection error on a fresh attempt is not retried", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		host, p, err := net.SplitHostPort(ln.Addr().String())
		require.NoError(t, err)
		port, err := strconv.Atoi(p)
		require.NoError(t, err)
		ln.Close() // nothing is listening: dial itself fails

		m := pool.New(pool.Settings{})
		defer m.Close()
		d := dialer.New(dialer.Config{})

		pr, err := model.Prepare(&model.Request{Method: "GET", URL: "http://" + host + ":" + strconv.Itoa(port) + "/x"})
		require.NoError(t, err)

		_, err = AttemptWithRetry(context.Background(), pr, nil, newEngineSettings(d, m))
		require.Error(t, err)
	})

	t.Run("releases the connection back to the pool on an HTTP/1.1 keep-alive response with Content-Length", func(t *testing.T) {
		host, port, serveNext := cannedServer(t)
		serveNext("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")

		m := pool.New(pool.Settings{})
		defer m.Close()
		d := dialer.New(dialer.Config{})

		pr, err := model.Prepare(&model.Request{Method: "GET", URL: "http://" + host + ":" + strconv.Itoa(port) + "/x"})
		require.NoError(t, err)

		resp, err := AttemptWithRetry(context.Background(), pr, nil, newEngineSettings(d, m))
		require.NoError(t, err)
		_, err = io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		key := pool.Key{Host: pr.Host, Port: pr.Port, Secure: pr.Secure}
		require.Eventually(t, func() bool { return m.Idle(key) == 1 }, time.Second, time.Millisecond)
	})
}

func TestResolveProxy(t *testing.T) {
	t.Run("an explicit proxy on the request wins over the environment", func(t *testing.T) {
		t.Setenv("http_proxy", "http://env-proxy.local:8080")
		pr, err := model.Prepare(&model.Request{URL: "http://example.com/", Proxy: "http://explicit.local:9090"})
		require.NoError(t, err)
		p, err := ResolveProxy(pr)
		require.NoError(t, err)
		require.NotNil(t, p)
		require.Equal(t, "explicit.local", p.Host)
	})

	t.Run("a SOCKSProxy request field is used when no explicit HTTP proxy is set", func(t *testing.T) {
		pr, err := model.Prepare(&model.Request{URL: "http://example.com/", SOCKSProxy: "socks5://socks.local:1080"})
		require.NoError(t, err)
		p, err := ResolveProxy(pr)
		require.NoError(t, err)
		require.NotNil(t, p)
		require.Equal(t, "socks5", p.Scheme)
	})
}
