package pool

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-httpc/httpc/internal/wire"
)

// Logger is the minimal sink the reaper logs evictions through. When
// Settings.Logger is nil, a no-op logger that discards everything is
// used.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// Settings configures a Manager, following a plain
// struct-with-defaults pattern.
type Settings struct {
	// IdleTimeout is how long a pooled connection may sit idle before
	// the reaper evicts it. Zero defaults to 30s.
	IdleTimeout time.Duration
	// MaxConnsPerHost bounds concurrent connections per Key; zero means
	// unbounded.
	MaxConnsPerHost int
	Logger          Logger
	// Clock allows tests to control the reaper's notion of time;
	// defaults to the real clock. Grounded on
	// oneee-playground-network-stack/transport/test/conn.go's use of
	// github.com/benbjohnson/clock for the same purpose.
	Clock clock.Clock
}

func (s Settings) withDefaults() Settings {
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = 30 * time.Second
	}
	if s.Logger == nil {
		s.Logger = nopLogger{}
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	return s
}

type idleConn struct {
	conn      wire.Connection
	insertedAt time.Time
}

type hostState struct {
	idle   []idleConn // LIFO: append/pop from the end
	ticket chan struct{}
}

// Manager is the pooled connection manager. Create with New, share
// across concurrent callers, and Close exactly once.
type Manager struct {
	settings Settings

	mu     sync.Mutex
	cond   *sync.Cond
	hosts  map[Key]*hostState
	closed bool

	reaperDone chan struct{}
}

// State reports whether an acquired connection was just dialed or
// drawn from the idle pool.
type State int

const (
	Fresh State = iota
	Reused
)

// Disposition is the release-time decision: return the connection to
// the pool, or close it.
type Disposition int

const (
	DontReuse Disposition = iota
	Reuse
)

// ErrManagerClosed is returned by Acquire once Close has run.
type ErrManagerClosed struct{}

func (ErrManagerClosed) Error() string { return "httpc: manager closed" }

// New creates a Manager and spawns its reaper. Callers should Close
// it exactly once when done; there is no finalizer here, so a caller
// that builds one (the top-level httpc.Manager) must Close it
// itself.
func New(settings Settings) *Manager {
	m := &Manager{
		settings:   settings.withDefaults(),
		hosts:      map[Key]*hostState{},
		reaperDone: make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	go m.reap()
	return m
}

func (m *Manager) hostStateLocked(key Key) *hostState {
	hs, ok := m.hosts[key]
	if !ok {
		hs = &hostState{}
		if m.settings.MaxConnsPerHost > 0 {
			hs.ticket = make(chan struct{}, m.settings.MaxConnsPerHost)
		}
		m.hosts[key] = hs
	}
	return hs
}

// Lease is the handle Acquire hands back: the connection, whether it
// was Fresh or Reused, and the release token for handing it back.
// Release is idempotent and safe to defer immediately after Acquire
// with DontReuse: an earlier explicit Release(Reuse) (once the body
// has been fully drained) wins, because only the first call does
// anything.
type Lease struct {
	m     *Manager
	key   Key
	Conn  wire.Connection
	State State

	mu   sync.Mutex
	done bool
}

// Release hands the connection back (Reuse) or closes it (DontReuse).
// Only the first call has any effect; this is what makes the
// acquire/release pattern non-lossy under cancellation: a caller
// defers Release(DontReuse) right after Acquire, and an explicit
// Release(Reuse) later simply wins the race if it runs first.
func (l *Lease) Release(d Disposition) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return
	}
	l.done = true
	l.mu.Unlock()
	l.m.release(l.key, l.Conn, d)
}

// Dial is the function Acquire falls back to when no idle connection
// is available for key. It dials outside any pool-wide lock.
type Dial func(ctx context.Context) (wire.Connection, error)

// Acquire pops an idle connection for key if one exists (Reused),
// otherwise dials a new one (Fresh). The per-host ceiling, if
// configured, is acquired first and released exactly when the
// returned Lease is finally released.
func (m *Manager) Acquire(ctx context.Context, key Key, dial Dial) (*Lease, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed{}
	}
	hs := m.hostStateLocked(key)
	m.mu.Unlock()

	if hs.ticket != nil {
		select {
		case hs.ticket <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Step 1-2: atomically pop the idle head, if any.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if hs.ticket != nil {
			<-hs.ticket
		}
		return nil, ErrManagerClosed{}
	}
	if n := len(hs.idle); n > 0 {
		ic := hs.idle[n-1]
		hs.idle = hs.idle[:n-1]
		m.mu.Unlock()
		if probeAlive(ic.conn) {
			return &Lease{m: m, key: key, Conn: ic.conn, State: Reused}, nil
		}
		ic.conn.Close()
		// fall through to dial a replacement; ticket stays held.
	} else {
		m.mu.Unlock()
	}

	// Step 3: dial outside the lock.
	conn, err := dial(ctx)
	if err != nil {
		if hs.ticket != nil {
			<-hs.ticket
		}
		return nil, err
	}
	return &Lease{m: m, key: key, Conn: conn, State: Fresh}, nil
}

// release is the internal counterpart of Lease.Release: it either
// pushes conn back onto the idle stack (signalling the reaper, which
// may be parked waiting for non-empty pools) or closes it, and frees
// the per-host ticket either way.
func (m *Manager) release(key Key, conn wire.Connection, d Disposition) {
	m.mu.Lock()
	hs, ok := m.hosts[key]
	if !ok {
		m.mu.Unlock()
		conn.Close()
		return
	}
	closedMgr := m.closed
	reuse := d == Reuse && !closedMgr
	if reuse {
		hs.idle = append(hs.idle, idleConn{conn: conn, insertedAt: m.settings.Clock.Now()})
		m.cond.Broadcast()
	}
	if hs.ticket != nil {
		select {
		case <-hs.ticket:
		default:
		}
	}
	m.mu.Unlock()
	if !reuse {
		conn.Close()
	}
}

// Close atomically empties the pool, closing every idle connection,
// and causes every future Acquire to fail with ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var toClose []wire.Connection
	for _, hs := range m.hosts {
		for _, ic := range hs.idle {
			toClose = append(toClose, ic.conn)
		}
		hs.idle = nil
	}
	m.cond.Broadcast()
	m.mu.Unlock()

	for _, c := range toClose {
		c.Close()
	}
	<-m.reaperDone
}

// Idle reports how many idle connections are pooled for key; for
// tests.
func (m *Manager) Idle(key Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	hs, ok := m.hosts[key]
	if !ok {
		return 0
	}
	return len(hs.idle)
}

// reap wakes every IdleTimeout/2 and evicts connections older than
// IdleTimeout, sleeping on m.cond while every pool is empty so it
// never busy-waits.
func (m *Manager) reap() {
	defer close(m.reaperDone)
	interval := m.settings.IdleTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	for {
		m.mu.Lock()
		for !m.closed && m.totalIdleLocked() == 0 {
			m.cond.Wait()
		}
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		timer := m.settings.Clock.Timer(interval)
		<-timer.C

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		cutoff := m.settings.Clock.Now().Add(-m.settings.IdleTimeout)
		var toClose []wire.Connection
		for _, hs := range m.hosts {
			kept := hs.idle[:0]
			for _, ic := range hs.idle {
				if ic.insertedAt.Before(cutoff) {
					toClose = append(toClose, ic.conn)
				} else {
					kept = append(kept, ic)
				}
			}
			hs.idle = kept
		}
		m.mu.Unlock()

		for _, c := range toClose {
			c.Close()
			m.settings.Logger.Printf("pool: reaped idle connection")
		}
	}
}

func (m *Manager) totalIdleLocked() int {
	n := 0
	for _, hs := range m.hosts {
		n += len(hs.idle)
	}
	return n
}
