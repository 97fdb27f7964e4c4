package httpc

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-httpc/httpc/internal/dialer"
	"github.com/go-httpc/httpc/internal/engine"
	"github.com/go-httpc/httpc/internal/pool"
)

// ManagerSettings configures a Manager: the connection pool's
// lifetime and concurrency limits, the dialer's TLS configuration,
// and the engine's redirect/retry policy.
type ManagerSettings struct {
	IdleTimeout     time.Duration
	MaxConnsPerHost int
	Logger          pool.Logger

	TLSConfig      *tls.Config
	ProxyTLSConfig *tls.Config

	ModifyRequest         func(*PreparedRequest) error
	RetryableException    func(error) bool
	WrapIOException       func(error) error
	RewriteMethodOn301302 bool
}

// Manager owns a connection pool and dialer, and runs requests against
// them. Create one with NewManager, share it across goroutines, and
// Close it exactly once when done.
type Manager struct {
	pool     *pool.Manager
	dialer   *dialer.Dialer
	settings engine.Settings
}

// NewManager creates a Manager and starts its background reaper.
func NewManager(settings ManagerSettings) *Manager {
	m := &Manager{
		pool: pool.New(pool.Settings{
			IdleTimeout:     settings.IdleTimeout,
			MaxConnsPerHost: settings.MaxConnsPerHost,
			Logger:          settings.Logger,
		}),
		dialer: dialer.New(dialer.Config{
			TLSConfig:      settings.TLSConfig,
			ProxyTLSConfig: settings.ProxyTLSConfig,
		}),
	}
	m.settings = engine.Settings{
		ModifyRequest:         settings.ModifyRequest,
		RetryableException:    settings.RetryableException,
		WrapIOException:       settings.WrapIOException,
		RewriteMethodOn301302: settings.RewriteMethodOn301302,
	}
	m.settings.Manager = m.pool
	m.settings.Dialer = m.dialer
	return m
}

// Close empties and closes the connection pool, waiting for the
// reaper to exit. Every Acquire racing with or following Close fails
// with ManagerClosed.
func (m *Manager) Close() { m.pool.Close() }

// Idle reports the number of idle pooled connections for host:port
// (secure or not), for tests and diagnostics.
func (m *Manager) Idle(host string, port int, secure bool) int {
	return m.pool.Idle(pool.Key{Host: host, Port: port, Secure: secure})
}

// Do runs a single request to completion, including redirects and the
// retry-once-on-reused-connection policy, against jar. It returns the
// response and the jar value updated with every hop's Set-Cookie
// headers.
func (m *Manager) Do(ctx context.Context, req *Request, jar CookieJar) (*Response, CookieJar, error) {
	return engine.PerformRequest(ctx, req, jar, m.settings, nil)
}
