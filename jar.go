package httpc

import (
	"net/url"
	"time"

	"github.com/go-httpc/httpc/internal/cookiejar"
)

// CookieJar is an immutable snapshot of stored cookies. Every
// operation below takes one and returns a new one; there is no shared
// mutable jar state to synchronize, so concurrent callers each thread
// their own value through.
type CookieJar = cookiejar.Jar

// NewCookieJar returns an empty jar.
func NewCookieJar() CookieJar { return cookiejar.New() }

// InsertCookiesIntoRequest computes the Cookie header value a request
// to reqURL should carry.
func InsertCookiesIntoRequest(jar CookieJar, reqURL *url.URL, now time.Time) string {
	return cookiejar.InsertCookiesIntoRequest(jar, reqURL, now)
}

// UpdateCookieJar folds a response's Set-Cookie header values from
// reqURL into jar, per RFC 6265.
func UpdateCookieJar(jar CookieJar, reqURL *url.URL, setCookieHeaders []string, now time.Time) CookieJar {
	return cookiejar.UpdateCookieJar(jar, reqURL, setCookieHeaders, now, cookiejar.DefaultOptions)
}

// EvictExpiredCookies removes every cookie whose expiry is before now.
func EvictExpiredCookies(jar CookieJar, now time.Time) CookieJar {
	return cookiejar.EvictExpired(jar, now)
}
