//go:build linux

package pool

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/go-httpc/httpc/internal/wire"
)

// probeAlive peeks a single byte on the idle connection's underlying
// fd with MSG_PEEK|MSG_DONTWAIT: a zero-length read means the peer
// sent a FIN (dead), an error other than EAGAIN/EWOULDBLOCK means the
// socket is unusable, and EAGAIN means no data is pending but the
// socket is still open (alive).
func probeAlive(c wire.Connection) bool {
	nc := rawFD(c)
	sc, ok := nc.(syscall.Conn)
	if !ok {
		return true
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return true
	}
	alive := true
	buf := make([]byte, 1)
	_ = raw.Read(func(fd uintptr) bool {
		n, _, err := unix.Recvfrom(int(fd), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			alive = true
		case err != nil:
			alive = false
		case n == 0:
			alive = false
		default:
			// data is already sitting there unread; leave it for the
			// actual response parser, just report the socket as alive.
			alive = true
		}
		return true
	})
	return alive
}
