// Package httpc is a connection-pooling HTTP/1.1 client. It wraps a
// managed pool of persistent connections (internal/pool), raw and TLS
// dialing with HTTP/SOCKS proxy support (internal/dialer), a chunked-
// and content-length-aware body engine (internal/body), and an
// RFC 6265 cookie jar (internal/cookiejar) behind a single Manager.
package httpc
