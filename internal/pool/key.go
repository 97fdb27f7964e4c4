// Package pool implements a pooled, keep-alive connection Manager
// with safe acquire/release under concurrent use and asynchronous
// failure, and a background reaper that evicts idle connections.
package pool

// Key identifies a pool: (host, port, secure, proxyKey). It's a plain
// comparable struct so it can be used directly as a Go map key.
type Key struct {
	Host     string
	Port     int
	Secure   bool
	ProxyKey string
}
