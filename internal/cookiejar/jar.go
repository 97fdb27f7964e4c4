// Package cookiejar implements an RFC 6265 storage model, eviction,
// matching, and the Cookie/Set-Cookie request and response hooks. The
// jar is a plain value (a caller-owned slice, not shared mutable state
// inside a Manager), so every operation takes a Jar and returns a new
// one, making concurrent use safe by construction.
package cookiejar

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Cookie is a single stored cookie. Equality for storage purposes
// is (Name, Domain, Path).
type Cookie struct {
	Name, Value string

	Domain string
	Path   string
	Expiry time.Time

	CreationTime   time.Time
	LastAccessTime time.Time

	Persistent bool
	HostOnly   bool
	SecureOnly bool
	HTTPOnly   bool
}

type key struct{ name, domain, path string }

func (c Cookie) key() key { return key{c.Name, c.Domain, c.Path} }

// Jar is an immutable snapshot of stored cookies.
type Jar struct {
	cookies []Cookie
}

// Options configures jar behavior. RejectPublicSuffixes consults the
// public suffix list before accepting a domain-scoped cookie, and
// defaults to true.
type Options struct {
	RejectPublicSuffixes bool
}

// New returns an empty jar.
func New() Jar { return Jar{} }

// DefaultOptions rejects cookies scoped to a bare public suffix.
var DefaultOptions = Options{RejectPublicSuffixes: true}

func (j Jar) clone() Jar {
	return Jar{cookies: append([]Cookie(nil), j.cookies...)}
}

// Count reports how many cookies are stored, for tests.
func (j Jar) Count() int { return len(j.cookies) }

// EvictExpired removes every cookie with Expiry before now.
func EvictExpired(j Jar, now time.Time) Jar {
	out := j.clone()
	kept := out.cookies[:0]
	for _, c := range out.cookies {
		if !c.Expiry.Before(now) {
			kept = append(kept, c)
		}
	}
	out.cookies = kept
	return out
}

// UpdateCookieJar applies the Set-Cookie receipt algorithm, step by
// step, for every Set-Cookie header value on a response from reqURL.
func UpdateCookieJar(j Jar, reqURL *url.URL, setCookieHeaders []string, now time.Time, opts Options) Jar {
	if len(setCookieHeaders) == 0 {
		return j
	}
	raw := parseSetCookies(setCookieHeaders)
	out := j.clone()
	for _, rc := range raw {
		c, ok := receive(rc, reqURL, now, opts)
		if !ok {
			continue
		}
		out = insert(out, c)
	}
	return out
}

// parseSetCookies delegates raw Set-Cookie tokenizing to net/http
// (the same external-collaborator treatment as URL parsing) via the
// exported http.Response.Cookies, so this package only implements the
// RFC 6265 storage algorithm itself.
func parseSetCookies(values []string) []*http.Cookie {
	resp := &http.Response{Header: http.Header{"Set-Cookie": values}}
	return resp.Cookies()
}

func receive(rc *http.Cookie, reqURL *url.URL, now time.Time, opts Options) (Cookie, bool) {
	c := Cookie{
		Name:           rc.Name,
		Value:          rc.Value,
		CreationTime:   now,
		LastAccessTime: now,
		SecureOnly:     rc.Secure,
		HTTPOnly:       rc.HttpOnly,
	}

	switch {
	case rc.MaxAge != 0:
		if rc.MaxAge < 0 {
			c.Expiry = time.Unix(0, 0)
		} else {
			c.Expiry = now.Add(time.Duration(rc.MaxAge) * time.Second)
		}
		c.Persistent = true
	case !rc.Expires.IsZero():
		c.Expiry = rc.Expires
		c.Persistent = true
	default:
		c.Expiry = now.AddDate(1000, 0, 0)
		c.Persistent = false
	}

	domain := rc.Domain
	if strings.HasSuffix(domain, ".") {
		return Cookie{}, false
	}
	domain = strings.TrimPrefix(domain, ".")
	domain = strings.ToLower(domain)

	if domain != "" {
		if opts.RejectPublicSuffixes && isPublicSuffix(domain) {
			if domain != strings.ToLower(reqURL.Hostname()) {
				return Cookie{}, false
			}
			domain = ""
		}
	}

	if domain != "" {
		if !domainMatches(reqURL.Hostname(), domain) {
			return Cookie{}, false
		}
		c.Domain = domain
		c.HostOnly = false
	} else {
		c.Domain = strings.ToLower(reqURL.Hostname())
		c.HostOnly = true
	}

	if rc.Path != "" && strings.HasPrefix(rc.Path, "/") {
		c.Path = rc.Path
	} else {
		c.Path = defaultPath(reqURL.Path)
	}

	return c, true
}

func isPublicSuffix(domain string) bool {
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}

// insert replaces any existing cookie with the same (name, domain,
// path) in place, inheriting its creation time; otherwise it appends c.
func insert(j Jar, c Cookie) Jar {
	k := c.key()
	for i, old := range j.cookies {
		if old.key() == k {
			c.CreationTime = old.CreationTime
			j.cookies[i] = c
			return j
		}
	}
	j.cookies = append(j.cookies, c)
	return j
}

// InsertCookiesIntoRequest computes the "Cookie" header value for a
// request to reqURL: cookies are filtered by domain/path/secure match,
// sorted by longer-path-first then earlier-creation-first, and
// concatenated.
func InsertCookiesIntoRequest(j Jar, reqURL *url.URL, now time.Time) string {
	var matched []Cookie
	for _, c := range j.cookies {
		if c.Expiry.Before(now) {
			continue
		}
		if !cookieApplies(c, reqURL) {
			continue
		}
		matched = append(matched, c)
	}
	sort.SliceStable(matched, func(i, k int) bool {
		if len(matched[i].Path) != len(matched[k].Path) {
			return len(matched[i].Path) > len(matched[k].Path)
		}
		return matched[i].CreationTime.Before(matched[k].CreationTime)
	})
	parts := make([]string, 0, len(matched))
	for _, c := range matched {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

func cookieApplies(c Cookie, reqURL *url.URL) bool {
	host := reqURL.Hostname()
	if c.HostOnly {
		if !strings.EqualFold(host, c.Domain) {
			return false
		}
	} else if !domainMatches(host, c.Domain) {
		return false
	}
	if !pathMatches(reqURL.Path, c.Path) {
		return false
	}
	if c.SecureOnly && reqURL.Scheme != "https" {
		return false
	}
	return true
}

// domainMatches implements RFC 6265 §5.1.3.
func domainMatches(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	if host == domain {
		return true
	}
	if isIPv4Literal(host) {
		return false
	}
	return strings.HasSuffix(host, "."+domain)
}

func isIPv4Literal(host string) bool {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

// pathMatches implements RFC 6265 §5.1.4.
func pathMatches(requestPath, cookiePath string) bool {
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	return len(requestPath) > len(cookiePath) && requestPath[len(cookiePath)] == '/'
}

// defaultPath implements RFC 6265 §5.1.4's default-path algorithm.
func defaultPath(requestPath string) string {
	if requestPath == "" || requestPath[0] != '/' {
		return "/"
	}
	idx := strings.LastIndex(requestPath, "/")
	if idx <= 0 {
		return "/"
	}
	return requestPath[:idx]
}
