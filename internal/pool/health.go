package pool

import (
	"net"

	"github.com/go-httpc/httpc/internal/wire"
)

// probeAlive is implemented per-platform (health_linux.go /
// health_other.go); see DESIGN.md's internal/pool/health.go entry.
// It must never block and must never consume bytes the caller would
// otherwise read as response data: it only distinguishes "this idle
// socket is still usable" from "the peer already closed it".

func rawFD(c wire.Connection) net.Conn {
	if t, ok := c.Raw().(interface{ NetConn() net.Conn }); ok {
		return t.NetConn()
	}
	return c.Raw()
}
