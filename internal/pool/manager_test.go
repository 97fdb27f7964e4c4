package pool

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"github.com/go-httpc/httpc/internal/wire"
)

// fakeConn is a minimal wire.Connection for exercising the Manager
// without a real socket. Close is idempotent-counted so tests can
// assert exactly how many connections the Manager actually tore down.
type fakeConn struct {
	id     int
	closed int32
}

func (c *fakeConn) Read([]byte) (int, error)         { return 0, nil }
func (c *fakeConn) Write(p []byte) (int, error)       { return len(p), nil }
func (c *fakeConn) ReadExactly(n int) ([]byte, error) { return make([]byte, n), nil }
func (c *fakeConn) Unread([]byte)                     {}
func (c *fakeConn) Raw() net.Conn                     { return nil }
func (c *fakeConn) Close() error                      { atomic.AddInt32(&c.closed, 1); return nil }
func (c *fakeConn) isClosed() bool                    { return atomic.LoadInt32(&c.closed) > 0 }

var nextConnID int32

func newFakeConn() *fakeConn {
	return &fakeConn{id: int(atomic.AddInt32(&nextConnID, 1))}
}

func dialFake(conn *fakeConn) Dial {
	return func(ctx context.Context) (wire.Connection, error) { return conn, nil }
}

var testKey = Key{Host: "example.com", Port: 80}

type ManagerSuite struct {
	suite.Suite
	clock *clock.Mock
	m     *Manager
}

func (s *ManagerSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.m = New(Settings{IdleTimeout: 2 * time.Second, Clock: s.clock})
}

func (s *ManagerSuite) TearDownTest() {
	s.m.Close()
	goleak.VerifyNone(s.T())
}

func (s *ManagerSuite) TestAcquireDialsFreshWhenPoolEmpty() {
	conn := newFakeConn()
	lease, err := s.m.Acquire(context.Background(), testKey, dialFake(conn))
	s.Require().NoError(err)
	s.Equal(Fresh, lease.State)
	s.Same(wire.Connection(conn), lease.Conn)
}

func (s *ManagerSuite) TestReleaseReuseThenAcquireReused() {
	conn := newFakeConn()
	lease, err := s.m.Acquire(context.Background(), testKey, dialFake(conn))
	s.Require().NoError(err)
	lease.Release(Reuse)
	s.Equal(1, s.m.Idle(testKey))

	lease2, err := s.m.Acquire(context.Background(), testKey, dialFake(newFakeConn()))
	s.Require().NoError(err)
	s.Equal(Reused, lease2.State)
	s.Same(wire.Connection(conn), lease2.Conn)
	s.Equal(0, s.m.Idle(testKey))
	lease2.Release(DontReuse)
}

func (s *ManagerSuite) TestReleaseDontReuseClosesConnection() {
	conn := newFakeConn()
	lease, err := s.m.Acquire(context.Background(), testKey, dialFake(conn))
	s.Require().NoError(err)
	lease.Release(DontReuse)
	s.Equal(0, s.m.Idle(testKey))
	s.True(conn.isClosed())
}

func (s *ManagerSuite) TestReleaseIsIdempotent() {
	conn := newFakeConn()
	lease, err := s.m.Acquire(context.Background(), testKey, dialFake(conn))
	s.Require().NoError(err)
	lease.Release(Reuse)
	lease.Release(DontReuse) // second call must be a no-op
	s.Equal(1, s.m.Idle(testKey))
	s.False(conn.isClosed())
}

func (s *ManagerSuite) TestReaperEvictsConnectionsOlderThanIdleTimeout() {
	conn := newFakeConn()
	lease, err := s.m.Acquire(context.Background(), testKey, dialFake(conn))
	s.Require().NoError(err)
	lease.Release(Reuse)
	s.Require().Equal(1, s.m.Idle(testKey))

	// Advance the mock clock in small steps rather than one big jump:
	// the reaper goroutine registers its Timer asynchronously after
	// cond.Wait() wakes, so a single Add call race-loses if it lands
	// before that registration. Repeatedly nudging forward guarantees
	// the reaper's timer is live by the time a nudge pushes it past
	// IdleTimeout, however many nudges that race takes.
	s.Require().Eventually(func() bool {
		s.clock.Add(100 * time.Millisecond)
		return s.m.Idle(testKey) == 0
	}, time.Second, time.Millisecond)
	s.True(conn.isClosed())
}

func (s *ManagerSuite) TestCloseClosesIdleConnectionsAndRejectsFurtherAcquire() {
	conn := newFakeConn()
	lease, err := s.m.Acquire(context.Background(), testKey, dialFake(conn))
	s.Require().NoError(err)
	lease.Release(Reuse)

	s.m.Close()
	s.True(conn.isClosed())

	_, err = s.m.Acquire(context.Background(), testKey, dialFake(newFakeConn()))
	s.Require().Error(err)
	var closedErr ErrManagerClosed
	s.Require().ErrorAs(err, &closedErr)
}

func (s *ManagerSuite) TestMaxConnsPerHostBlocksUntilATicketFrees() {
	s.m.Close() // rebuild with a ceiling
	s.m = New(Settings{IdleTimeout: 2 * time.Second, Clock: s.clock, MaxConnsPerHost: 1})

	conn1 := newFakeConn()
	lease1, err := s.m.Acquire(context.Background(), testKey, dialFake(conn1))
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.m.Acquire(ctx, testKey, dialFake(newFakeConn()))
	s.Require().Error(err) // ticket held by lease1, context deadline wins

	lease1.Release(DontReuse)

	conn2 := newFakeConn()
	lease2, err := s.m.Acquire(context.Background(), testKey, dialFake(conn2))
	s.Require().NoError(err)
	lease2.Release(DontReuse)
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{}.withDefaults()
	assert.Equal(t, 30*time.Second, s.IdleTimeout)
	assert.NotNil(t, s.Logger)
	assert.NotNil(t, s.Clock)
}

func TestAcquireFailsWhenDialFails(t *testing.T) {
	m := New(Settings{Clock: clock.NewMock()})
	defer m.Close()
	wantErr := assert.AnError
	_, err := m.Acquire(context.Background(), testKey, func(ctx context.Context) (wire.Connection, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}
